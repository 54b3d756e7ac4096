package training

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortdesk/client/internal/backend"
)

// fakeBackend keeps a server-side sample list and appends submitted batches.
type fakeBackend struct {
	stored    []backend.Sample
	submitErr error
	loadErr   error
	batches   [][]backend.Sample
}

func (f *fakeBackend) FetchTrainingData(context.Context) ([]backend.Sample, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]backend.Sample(nil), f.stored...), nil
}

func (f *fakeBackend) SubmitTraining(_ context.Context, samples []backend.Sample) (int, error) {
	f.batches = append(f.batches, samples)
	if f.submitErr != nil {
		return 0, f.submitErr
	}
	f.stored = append(f.stored, samples...)
	return len(f.stored), nil
}

func TestAddSample(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		label     string
		wantField string
	}{
		{name: "empty text", text: "", label: "docs", wantField: "text"},
		{name: "whitespace text", text: " \t\n", label: "docs", wantField: "text"},
		{name: "empty label is accepted", text: "hello world", label: ""},
		{name: "valid", text: "hello world", label: "docs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector(&fakeBackend{})
			err := c.AddSample(tt.text, tt.label)

			if tt.wantField == "" {
				require.NoError(t, err)
				require.Equal(t, 1, c.PendingCount())
				assert.Equal(t, backend.Sample{Text: tt.text, Label: tt.label}, c.Pending()[0])
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Zero(t, c.PendingCount())
		})
	}
}

func TestSubmit_SuccessClearsAndReloads(t *testing.T) {
	b := &fakeBackend{stored: []backend.Sample{{Text: "invoice for october payment", Label: "Invoices"}}}
	c := NewCollector(b)
	require.NoError(t, c.Load(context.Background()))

	for i := 0; i < 4; i++ {
		require.NoError(t, c.AddSample(fmt.Sprintf("sample %d", i), "Others"))
	}
	assert.Equal(t, 5, c.Count())

	trained, err := c.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, trained)
	assert.Zero(t, c.PendingCount())
	assert.Equal(t, "Model trained with 5 samples!", c.Status())
	assert.Len(t, b.batches[0], 4)

	display := c.Display()
	require.Len(t, display, 5)
	for _, e := range display {
		assert.False(t, e.New, "reloaded list holds only confirmed samples")
	}
	assert.Equal(t, "sample 3", display[0].Text)
}

func TestSubmit_FailureKeepsBatch(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
	}{
		{
			name:       "backend detail",
			err:        &backend.APIError{Operation: "submit_training", StatusCode: http.StatusBadRequest, Detail: "need at least two classes"},
			wantStatus: "Error: need at least two classes",
		},
		{
			name:       "network",
			err:        fmt.Errorf("submit_training: %w: timeout", backend.ErrTransport),
			wantStatus: "Error: Network request failed.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{submitErr: tt.err}
			c := NewCollector(b)
			require.NoError(t, c.AddSample("quarterly performance report", "Reports"))
			require.NoError(t, c.AddSample("holiday trip photos", "Photos"))

			_, err := c.Submit(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err))

			assert.Equal(t, 2, c.PendingCount())
			assert.Equal(t, tt.wantStatus, c.Status())

			b.submitErr = nil
			_, err = c.Submit(context.Background())
			require.NoError(t, err)
			assert.Zero(t, c.PendingCount())
			assert.Equal(t, b.batches[0], b.batches[1], "retry resends the same batch")
		})
	}
}

func TestSubmit_EmptyBatchRetrains(t *testing.T) {
	b := &fakeBackend{stored: []backend.Sample{{Text: "meeting minutes", Label: "Others"}}}
	c := NewCollector(b)

	trained, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, trained)
	assert.Empty(t, b.batches[0])
}

func TestSubmit_ReloadFailureStillSucceeds(t *testing.T) {
	b := &fakeBackend{}
	c := NewCollector(b)
	require.NoError(t, c.AddSample("cv marketing", "Resumes"))
	b.loadErr = errors.New("boom")

	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Zero(t, c.PendingCount())
}

func TestDisplay_PendingFirst(t *testing.T) {
	b := &fakeBackend{stored: []backend.Sample{{Text: "a", Label: "Others"}, {Text: "b", Label: "Reports"}}}
	c := NewCollector(b)
	require.NoError(t, c.Load(context.Background()))
	require.NoError(t, c.AddSample("c", "Photos"))

	assert.Equal(t, []Entry{
		{Text: "c", Label: "Photos", New: true},
		{Text: "b", Label: "Reports"},
		{Text: "a", Label: "Others"},
	}, c.Display())
}
