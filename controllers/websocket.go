package controllers

import (
	"context"

	"academtrack_go/config"
	"academtrack_go/models"
	"academtrack_go/services"
	"academtrack_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub  *websocket.Hub
	auth *services.AuthService
}

func NewWebSocketController(hub *websocket.Hub, auth *services.AuthService) *WebSocketController {
	return &WebSocketController{hub: hub, auth: auth}
}

type wsClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// validateJWT validates a token from the ws query string and resolves
// the user. The upgrade handshake can't carry an Authorization header
// from browsers, so the normal middleware doesn't apply here.
func (wsc *WebSocketController) validateJWT(ctx context.Context, tokenString string) (*models.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &wsClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*wsClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrInvalidKey
	}

	user, err := wsc.auth.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// WebSocketHandler returns a Fiber handler that validates the token
// and attaches the connection to the refresh hub.
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		token := c.Query("token")
		if token == "" {
			c.WriteMessage(fiberws.CloseMessage, []byte("Missing token"))
			c.Close()
			return
		}

		user, err := wsc.validateJWT(context.Background(), token)
		if err != nil {
			logrus.WithError(err).Debug("WebSocket connection rejected")
			c.WriteMessage(fiberws.CloseMessage, []byte("Invalid token"))
			c.Close()
			return
		}

		wsc.hub.ServeFiberWS(c, user.ID)
	})
}

// GetWebSocketStats returns connection statistics (admin only).
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"status":            "active",
	})
}
