package controllers

import (
	"strings"

	"academtrack_go/middleware"
	"academtrack_go/models"
	"academtrack_go/services"

	"github.com/gofiber/fiber/v2"
)

type ScheduleController struct {
	schedule *services.ScheduleService
}

func NewScheduleController(schedule *services.ScheduleService) *ScheduleController {
	return &ScheduleController{schedule: schedule}
}

// GetEvents returns the whole schedule, or just one day's events when
// the date query parameter is present.
func (sc *ScheduleController) GetEvents(c *fiber.Ctx) error {
	if date := c.Query("date"); date != "" {
		events, err := sc.schedule.EventsOnDate(c.Context(), date)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"events": events})
	}

	events, err := sc.schedule.Events(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load schedule",
		})
	}
	return c.JSON(fiber.Map{"events": events})
}

// CreateEvent adds a schedule event (admin only).
func (sc *ScheduleController) CreateEvent(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	var event models.ScheduleEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	event.CreatedBy = user.ID

	created, err := sc.schedule.AddEvent(c.Context(), event)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	middleware.LogActivity(c, "CREATE", "schedule", fiber.Map{"event_id": created.ID})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"event": created})
}

// UpdateEvent overwrites a schedule event (admin only).
func (sc *ScheduleController) UpdateEvent(c *fiber.Ctx) error {
	var event models.ScheduleEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	updated, err := sc.schedule.UpdateEvent(c.Context(), c.Params("id"), event)
	if err != nil {
		status := fiber.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"event": updated})
}

// DeleteEvent removes a schedule event (admin only).
func (sc *ScheduleController) DeleteEvent(c *fiber.Ctx) error {
	if err := sc.schedule.DeleteEvent(c.Context(), c.Params("id")); err != nil {
		status := fiber.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Event deleted"})
}

// MarkAbsenceRequest records a missed occurrence of an event.
type MarkAbsenceRequest struct {
	EventID   string `json:"event_id"`
	SubjectID string `json:"subject_id"`
	Date      string `json:"date"`
}

// MarkAbsence records that the calling user missed an event occurrence.
// Admin accounts manage the curriculum, they don't attend it, so the
// operation is limited to regular users.
func (sc *ScheduleController) MarkAbsence(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}
	if user.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Admin accounts cannot mark absences",
		})
	}

	var req MarkAbsenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	record, err := sc.schedule.MarkAbsence(c.Context(), user, req.EventID, req.SubjectID, req.Date)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	middleware.LogActivity(c, "CREATE", "attendance", fiber.Map{
		"event_id": req.EventID,
		"date":     req.Date,
	})
	return c.JSON(fiber.Map{"record": record})
}

// GetAbsences returns the calling user's attendance records.
func (sc *ScheduleController) GetAbsences(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	records, err := sc.schedule.AbsencesForUser(c.Context(), user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load attendance records",
		})
	}
	return c.JSON(fiber.Map{"records": records})
}
