// Package training collects labelled text samples entered by the reviewer
// and submits them to the backend for retraining.
package training

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/backend"
	"github.com/sortdesk/client/internal/metrics"
	"github.com/sortdesk/client/pkg/logger"
)

const (
	statusTraining     = "Training..."
	statusNetworkError = "Error: Network request failed."
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type Backend interface {
	FetchTrainingData(ctx context.Context) ([]backend.Sample, error)
	SubmitTraining(ctx context.Context, samples []backend.Sample) (int, error)
}

// Entry is one line of the training panel. New marks samples not yet
// confirmed by the backend.
type Entry struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	New   bool   `json:"new"`
}

type Collector struct {
	backend Backend
	log     *zap.Logger

	mu        sync.Mutex
	canonical []backend.Sample
	pending   []backend.Sample
	status    string

	submitMu sync.Mutex
}

func NewCollector(b Backend) *Collector {
	return &Collector{
		backend: b,
		log:     logger.Named("training"),
	}
}

// AddSample appends a sample to the pending batch. Nothing is sent. Only the
// text is checked; the label is passed to the backend as given.
func (c *Collector) AddSample(text, label string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Message: "Please enter sample text."}
	}

	c.mu.Lock()
	c.pending = append(c.pending, backend.Sample{Text: text, Label: label})
	n := len(c.pending)
	c.mu.Unlock()

	c.log.Debug("Training sample added", zap.String("label", label), zap.Int("pending", n))
	return nil
}

func (c *Collector) Pending() []backend.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]backend.Sample(nil), c.pending...)
}

func (c *Collector) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Count is the number of samples shown in the panel, confirmed or not.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.canonical) + len(c.pending)
}

func (c *Collector) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Display lists pending samples then canonical ones, newest first.
func (c *Collector) Display() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, len(c.canonical)+len(c.pending))
	for i := len(c.pending) - 1; i >= 0; i-- {
		out = append(out, Entry{Text: c.pending[i].Text, Label: c.pending[i].Label, New: true})
	}
	for i := len(c.canonical) - 1; i >= 0; i-- {
		out = append(out, Entry{Text: c.canonical[i].Text, Label: c.canonical[i].Label})
	}
	return out
}

// Load replaces the canonical list with the backend's.
func (c *Collector) Load(ctx context.Context) error {
	samples, err := c.backend.FetchTrainingData(ctx)
	if err != nil {
		c.log.Error("Failed to load training data", zap.Error(err))
		return fmt.Errorf("failed to load training data: %w", err)
	}

	c.mu.Lock()
	c.canonical = samples
	c.mu.Unlock()

	c.log.Info("Training data loaded", zap.Int("samples", len(samples)))
	return nil
}

// Submit sends the pending batch. On success the batch is cleared and the
// canonical list reloaded; on failure the batch is kept for a retry. An
// empty batch retrains on the existing data.
func (c *Collector) Submit(ctx context.Context) (int, error) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	c.mu.Lock()
	batch := append([]backend.Sample(nil), c.pending...)
	c.status = statusTraining
	c.mu.Unlock()

	trained, err := c.backend.SubmitTraining(ctx, batch)
	if err != nil {
		status := statusNetworkError
		if detail, ok := backend.Detail(err); ok {
			status = "Error: " + detail
		}
		c.mu.Lock()
		c.status = status
		c.mu.Unlock()

		metrics.TrainingSubmissions.WithLabelValues("failed").Inc()
		c.log.Warn("Training submission failed", zap.Int("batch", len(batch)), zap.Error(err))
		return 0, fmt.Errorf("failed to submit training batch: %w", err)
	}

	c.mu.Lock()
	// samples added while the request was in flight stay pending
	c.pending = append([]backend.Sample(nil), c.pending[len(batch):]...)
	c.status = fmt.Sprintf("Model trained with %d samples!", trained)
	c.mu.Unlock()

	metrics.TrainingSubmissions.WithLabelValues("succeeded").Inc()
	c.log.Info("Training batch submitted", zap.Int("batch", len(batch)), zap.Int("trained", trained))

	if err := c.Load(ctx); err != nil {
		c.log.Warn("Reload after training failed", zap.Error(err))
	}
	return trained, nil
}
