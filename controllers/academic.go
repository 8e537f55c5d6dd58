package controllers

import (
	"strconv"
	"strings"

	"academtrack_go/middleware"
	"academtrack_go/models"
	"academtrack_go/services"
	"academtrack_go/storage"

	"github.com/gofiber/fiber/v2"
)

type AcademicController struct {
	academic *services.AcademicService
	storage  *storage.StorageService
}

// NewAcademicController wires the academic handlers. storageService may
// be nil when S3 is not configured; attachment uploads then return 503.
func NewAcademicController(academic *services.AcademicService, storageService *storage.StorageService) *AcademicController {
	return &AcademicController{academic: academic, storage: storageService}
}

// GetStructure returns the full shared curriculum structure.
func (ac *AcademicController) GetStructure(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"years":   ac.academic.Years(),
		"refresh": ac.academic.Refresh(),
	})
}

// GetSubjectsForYear returns every subject of one year merged with the
// calling user's overlay.
func (ac *AcademicController) GetSubjectsForYear(c *fiber.Ctx) error {
	yearNumber, err := strconv.Atoi(c.Params("year"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid year number",
		})
	}

	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	return c.JSON(fiber.Map{
		"subjects": ac.academic.GetSubjectsForYear(c.Context(), yearNumber, user),
	})
}

// GetSubject returns one subject merged with the calling user's overlay,
// including derived scores.
func (ac *AcademicController) GetSubject(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	subject, module, ok := ac.academic.GetSubject(c.Context(), c.Params("id"), user)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Subject not found",
		})
	}

	return c.JSON(fiber.Map{
		"subject": subject,
		"module":  module,
		"scores":  services.ComputeScores(subject),
	})
}

// UpdateStructureRequest carries a full replacement curriculum.
type UpdateStructureRequest struct {
	Years []models.Year `json:"years"`
}

// UpdateStructure replaces the shared structure (admin only). The write
// is optimistic; persistence failures are logged, not surfaced.
func (ac *AcademicController) UpdateStructure(c *fiber.Ctx) error {
	var req UpdateStructureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ac.academic.UpdateStructure(c.Context(), req.Years)
	middleware.LogActivity(c, "UPDATE", "structure", fiber.Map{"years": len(req.Years)})

	return c.JSON(fiber.Map{
		"message": "Structure updated",
		"years":   ac.academic.Years(),
	})
}

// UpdateSubjectLessonsRequest carries the replacement lesson list.
type UpdateSubjectLessonsRequest struct {
	Lessons []models.Lesson `json:"lessons"`
}

// UpdateSubjectLessons replaces one subject's lessons (admin only).
// Unlike structure updates this write is reconciling: it re-fetches the
// authoritative structure first and surfaces persistence failures.
func (ac *AcademicController) UpdateSubjectLessons(c *fiber.Ctx) error {
	var req UpdateSubjectLessonsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	subjectID := c.Params("id")
	if err := ac.academic.UpdateSubjectLessons(c.Context(), subjectID, req.Lessons); err != nil {
		status := fiber.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = fiber.StatusNotFound
		} else if strings.Contains(err.Error(), "not initialized") {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	middleware.LogActivity(c, "UPDATE", "lessons", fiber.Map{"subject_id": subjectID})
	return c.JSON(fiber.Map{"message": "Lessons updated"})
}

// UpdateSubjectData patches the calling user's scores or missed
// sessions for one subject.
func (ac *AcademicController) UpdateSubjectData(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	var patch services.SubjectDataPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	subjectID := c.Params("id")
	if err := ac.academic.UpdateUserSubjectData(c.Context(), user, subjectID, patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	subject, _, ok := ac.academic.GetSubject(c.Context(), subjectID, user)
	if !ok {
		return c.JSON(fiber.Map{"message": "Subject data updated"})
	}
	return c.JSON(fiber.Map{
		"message": "Subject data updated",
		"subject": subject,
		"scores":  services.ComputeScores(subject),
	})
}

// UpdateReviewStatusRequest sets a lesson's review state.
type UpdateReviewStatusRequest struct {
	Status models.ReviewStatus `json:"status"`
}

// UpdateLessonReviewStatus sets the calling user's review status for
// one lesson.
func (ac *AcademicController) UpdateLessonReviewStatus(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	var req UpdateReviewStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := ac.academic.UpdateLessonReviewStatus(c.Context(), user, c.Params("id"), c.Params("lessonId"), req.Status); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"message": "Review status updated"})
}

// UploadAttachment stores a lesson attachment file in S3 and returns
// its public URL (admin only). The URL is meant for course_link.
func (ac *AcademicController) UploadAttachment(c *fiber.Ctx) error {
	if ac.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Attachment storage not configured",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing file",
		})
	}

	url, err := ac.storage.UploadFile(file, "lessons", c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to upload attachment",
		})
	}

	middleware.LogActivity(c, "CREATE", "attachments", fiber.Map{
		"subject_id": c.Params("id"),
		"file":       file.Filename,
	})
	return c.JSON(fiber.Map{"url": url})
}
