package controllers

import (
	"academtrack_go/middleware"
	"academtrack_go/services"

	"github.com/gofiber/fiber/v2"
)

type ExportController struct {
	transcript *services.TranscriptService
	auth       *services.AuthService
}

func NewExportController(transcript *services.TranscriptService, auth *services.AuthService) *ExportController {
	return &ExportController{transcript: transcript, auth: auth}
}

// ExportTranscript streams an xlsx transcript. Users export their own;
// admins can export anyone's via the user_id query parameter.
func (ec *ExportController) ExportTranscript(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	target := *user
	if requestedID := c.Query("user_id"); requestedID != "" && requestedID != user.ID {
		if !user.IsAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}
		target, err = ec.auth.GetUser(c.Context(), requestedID)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	buf, err := ec.transcript.Export(c.Context(), &target)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+ec.transcript.FileName(&target))
	return c.Send(buf.Bytes())
}
