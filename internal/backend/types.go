package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
)

var (
	// ErrTransport marks failures where no response was received at all.
	ErrTransport = errors.New("backend unreachable")
	// ErrUnexpectedResponse marks a 2xx response whose body could not be read
	// or decoded.
	ErrUnexpectedResponse = errors.New("unexpected backend response")
)

// APIError is a non-2xx response. Detail is the server's human-readable
// failure description.
type APIError struct {
	Operation  string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: backend returned %d: %s", e.Operation, e.StatusCode, e.Detail)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Detail returns the server-provided failure text carried by err, if any.
func Detail(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail, true
	}
	return "", false
}

type RemoteConfig struct {
	WatchedDirectories []string          `json:"watched_directories"`
	CategoryFolders    map[string]string `json:"category_folders"`
	TextExtensions     []string          `json:"text_extensions"`
	ImageExtensions    []string          `json:"image_extensions"`
}

// Categories returns the known category labels, sorted.
func (c RemoteConfig) Categories() []string {
	out := make([]string, 0, len(c.CategoryFolders))
	for name := range c.CategoryFolders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Sample is one labelled training text. The backend lists samples as
// [text, label] pairs and accepts them as objects.
type Sample struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

func (s *Sample) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("training sample pair has %d elements", len(pair))
		}
		s.Text, s.Label = pair[0], pair[1]
		return nil
	}

	type plain Sample
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to decode training sample: %w", err)
	}
	*s = Sample(p)
	return nil
}

type ApplyResult struct {
	MovedTo  string `json:"moved_to,omitempty"`
	Rejected string `json:"rejected,omitempty"`
}

type TrainResult struct {
	SamplesTrained int `json:"samples_trained"`
}
