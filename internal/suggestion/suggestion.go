// Package suggestion defines the unit the backend proposes for review: one
// file and the category the classifier thinks it belongs to.
package suggestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrEmptyPath       = errors.New("suggestion path is empty")
	ErrConfidenceRange = errors.New("suggestion confidence outside [0, 1]")
)

// Suggestion is keyed by Path. Timestamp is informational and never used
// for ordering. An empty SuggestedCategory is carried as is.
type Suggestion struct {
	Path              string  `json:"path"`
	SuggestedCategory string  `json:"suggested_category"`
	Confidence        float64 `json:"confidence"`
	Timestamp         float64 `json:"timestamp,omitempty"`
}

func (s Suggestion) Validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return ErrEmptyPath
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("%w: %v", ErrConfidenceRange, s.Confidence)
	}
	return nil
}

// Decode parses a single push payload.
func Decode(data []byte) (Suggestion, error) {
	var s Suggestion
	if err := json.Unmarshal(data, &s); err != nil {
		return Suggestion{}, fmt.Errorf("failed to decode suggestion: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Suggestion{}, err
	}
	return s, nil
}

// ConfidenceLabel formats the confidence the way the review list shows it.
func (s Suggestion) ConfidenceLabel() string {
	return fmt.Sprintf("%.2f", s.Confidence)
}
