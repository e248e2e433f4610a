package service

import (
	"context"
	"errors"
	"io"

	"github.com/stemsplit/api/internal/analysis"
	"github.com/stemsplit/api/internal/model"
)

// ErrAnalysisUnavailable is returned when no feature extractor is configured
var ErrAnalysisUnavailable = errors.New("audio analysis is not available")

// AnalyzeService is a thin call-through to the feature extraction
// sidecar (BPM / key / scale / duration).
type AnalyzeService struct {
	analyzer *analysis.Client
}

func NewAnalyzeService(analyzer *analysis.Client) *AnalyzeService {
	return &AnalyzeService{analyzer: analyzer}
}

func (s *AnalyzeService) Analyze(ctx context.Context, filename string, audio io.Reader) (*model.AnalyzeResponse, error) {
	if s.analyzer == nil {
		return nil, ErrAnalysisUnavailable
	}
	result, err := s.analyzer.Analyze(ctx, filename, audio)
	if err != nil {
		return nil, err
	}
	return &model.AnalyzeResponse{
		BPM:      result.BPM,
		Key:      result.Key,
		Scale:    result.Scale,
		Duration: result.Duration,
	}, nil
}
