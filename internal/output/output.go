package output

import (
	"context"

	"github.com/hejijunhao/canopy/internal/model"
)

// Record kinds.
const (
	KindSuggestions = "suggestions"
	KindReport      = "report"
	KindRun         = "run"
)

// Record is one line of canopy output: the suggestions for a document, a
// concept's performance report, or a training run summary.
type Record struct {
	Kind        string                      `json:"kind"`
	ID          string                      `json:"id,omitempty"`
	Lang        string                      `json:"lang,omitempty"`
	Text        string                      `json:"text,omitempty"`
	Suggestions []model.TopicSuggestion     `json:"suggestions,omitempty"`
	Report      *model.ClassificationReport `json:"report,omitempty"`
	Run         *RunSummary                 `json:"run,omitempty"`
	Error       string                      `json:"error,omitempty"`
}

// RunSummary describes a finished training or evaluation run.
type RunSummary struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Incremental bool   `json:"incremental"`
	Refit       int    `json:"refit"`
	Skipped     int    `json:"skipped"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

// Output defines the interface for record destinations.
type Output interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}
