package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/stemsplit/api/internal/service"
	"github.com/stemsplit/api/pkg/response"
)

type AnalyzeHandler struct {
	service *service.AnalyzeService
}

func NewAnalyzeHandler(svc *service.AnalyzeService) *AnalyzeHandler {
	return &AnalyzeHandler{service: svc}
}

// Analyze handles POST /api/analyze (BPM, key, scale and duration)
func (h *AnalyzeHandler) Analyze(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "No audio file provided", nil)
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open uploaded file")
	}
	defer f.Close()

	result, err := h.service.Analyze(c.Context(), file.Filename, f)
	if err != nil {
		if errors.Is(err, service.ErrAnalysisUnavailable) {
			return response.Unavailable(c, "Audio analysis requires the analysis service to be configured")
		}
		return response.AnalysisError(c, err.Error())
	}

	return response.OK(c, result)
}
