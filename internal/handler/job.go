package handler

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/service"
	"github.com/stemsplit/api/internal/store"
	"github.com/stemsplit/api/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/jobs
func (h *JobHandler) Submit(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "No audio file provided", nil)
	}

	req := model.SubmitRequest{Stems: c.FormValue("stems")}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open uploaded file")
	}
	defer f.Close()

	result, err := h.service.Submit(c.Context(), file.Filename, f, req.Stems)
	if err != nil {
		var durErr *service.DurationExceededError
		if errors.As(err, &durErr) {
			return response.DurationExceeded(c, durErr.Error(), fiber.Map{
				"duration": durErr.Duration,
				"limit":    durErr.Limit,
			})
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/jobs/:id
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Status(jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Output handles GET /api/jobs/:id/outputs/+ and streams one stem.
// The wildcard segment carries the output name, which may be nested
// (the engine writes stems under a per-track directory).
func (h *JobHandler) Output(c *fiber.Ctx) error {
	jobID := c.Params("id")
	name, err := url.QueryUnescape(c.Params("+"))
	if err != nil || name == "" {
		return response.ValidationError(c, "Output name is required", nil)
	}

	path, err := h.service.OutputPath(jobID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Output not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return c.SendFile(path)
}

// Queue handles GET /api/queue
func (h *JobHandler) Queue(c *fiber.Ctx) error {
	return response.OK(c, h.service.QueueStats())
}

// Health handles GET /health, reporting liveness plus queue depth
func (h *JobHandler) Health(c *fiber.Ctx) error {
	stats := h.service.QueueStats()
	return response.OK(c, fiber.Map{
		"status":       "ok",
		"pendingCount": stats.PendingCount,
		"runningCount": stats.RunningCount,
	})
}

func formatValidationErrors(err error) []string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		out = append(out, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return out
}
