package controllers

import (
	"academtrack_go/middleware"
	"academtrack_go/services"

	"github.com/gofiber/fiber/v2"
)

type UserController struct {
	auth *services.AuthService
}

func NewUserController(auth *services.AuthService) *UserController {
	return &UserController{auth: auth}
}

// GetUsers lists all accounts (admin only).
func (uc *UserController) GetUsers(c *fiber.Ctx) error {
	users, err := uc.auth.Users(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load users",
		})
	}
	return c.JSON(fiber.Map{"users": users})
}

// DeleteUser removes an account (admin only). Admins cannot delete
// themselves.
func (uc *UserController) DeleteUser(c *fiber.Ctx) error {
	current, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	targetID := c.Params("id")
	if targetID == current.ID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Cannot delete your own account",
		})
	}

	if err := uc.auth.DeleteUser(c.Context(), targetID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	middleware.LogActivity(c, "DELETE", "users", fiber.Map{"user_id": targetID})
	return c.JSON(fiber.Map{"message": "User deleted"})
}

// SetAdminRequest toggles an account's admin flag.
type SetAdminRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// SetAdmin grants or revokes admin rights (admin only). Admins cannot
// demote themselves.
func (uc *UserController) SetAdmin(c *fiber.Ctx) error {
	current, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	targetID := c.Params("id")
	var req SetAdminRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if targetID == current.ID && !req.IsAdmin {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Cannot revoke your own admin rights",
		})
	}

	user, err := uc.auth.SetAdmin(c.Context(), targetID, req.IsAdmin)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	middleware.LogActivity(c, "UPDATE", "users", fiber.Map{
		"user_id":  targetID,
		"is_admin": req.IsAdmin,
	})
	return c.JSON(fiber.Map{"user": user})
}
