// Package dispatcher turns a reviewer's accept/reject decision into a
// backend request and reconciles the queue with the response.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/backend"
	"github.com/sortdesk/client/internal/metrics"
	"github.com/sortdesk/client/pkg/logger"
)

const (
	networkErrorNotice = "Network error applying action."
	unexpectedDetail   = "Unexpected error applying action."
)

type Result int

const (
	// Applied: the backend confirmed the decision.
	Applied Result = iota
	// Stale: the file no longer exists; the entry is dropped without applying.
	Stale
	// Failed: the backend refused; the entry stays for a retry.
	Failed
	// NetworkError: no response; the entry stays for a retry.
	NetworkError
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case Failed:
		return "failed"
	case NetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// Removed reports whether the queue entry was dropped.
func (r Result) Removed() bool {
	return r == Applied || r == Stale
}

type Outcome struct {
	Path    string `json:"path"`
	Accept  bool   `json:"accept"`
	Result  Result `json:"-"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	MovedTo string `json:"moved_to,omitempty"`
}

type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notice is a message for the reviewer. LevelError notices interrupt.
type Notice struct {
	Level   Level
	Message string
}

type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type Applier interface {
	Apply(ctx context.Context, path string, accept bool) (*backend.ApplyResult, error)
}

type Remover interface {
	Remove(path string) bool
}

// Journal records decision outcomes. Optional.
type Journal interface {
	RecordDecision(ctx context.Context, o Outcome, at time.Time) error
}

type Dispatcher struct {
	backend  Applier
	queue    Remover
	notifier Notifier
	journal  Journal
	log      *zap.Logger
}

func New(b Applier, q Remover, n Notifier, j Journal) *Dispatcher {
	if n == nil {
		n = NotifierFunc(func(Notice) {})
	}
	return &Dispatcher{
		backend:  b,
		queue:    q,
		notifier: n,
		journal:  j,
		log:      logger.Named("dispatcher"),
	}
}

// Apply sends one decision. Calls are independent of each other; two calls
// for the same path are both sent and reconcile against whatever the queue
// holds when their responses arrive.
func (d *Dispatcher) Apply(ctx context.Context, path string, accept bool) Outcome {
	out := Outcome{Path: path, Accept: accept}

	res, err := d.backend.Apply(ctx, path, accept)
	switch {
	case err == nil:
		out.Result = Applied
		if res != nil {
			out.MovedTo = res.MovedTo
		}
		d.queue.Remove(path)

	case backend.IsNotFound(err):
		out.Result = Stale
		out.Detail, _ = backend.Detail(err)
		d.queue.Remove(path)

	case isNetworkError(err):
		out.Result = NetworkError
		out.Detail = networkErrorNotice
		d.notifier.Notify(Notice{Level: LevelError, Message: networkErrorNotice})

	default:
		// refusals carry the server's detail
		detail, ok := backend.Detail(err)
		if !ok {
			detail = unexpectedDetail
		}
		out.Result = Failed
		out.Detail = detail
		d.notifier.Notify(Notice{Level: LevelError, Message: "Error: " + detail})
	}
	out.Status = out.Result.String()

	metrics.Decisions.WithLabelValues(decisionLabel(accept), out.Status).Inc()
	d.log.Info("Decision applied",
		zap.String("path", path),
		zap.Bool("accept", accept),
		zap.String("outcome", out.Status),
		zap.String("detail", out.Detail),
		zap.Error(err),
	)

	if d.journal != nil {
		if jerr := d.journal.RecordDecision(context.WithoutCancel(ctx), out, time.Now()); jerr != nil {
			d.log.Warn("Failed to journal decision", zap.Error(jerr))
		}
	}

	return out
}

func isNetworkError(err error) bool {
	return errors.Is(err, backend.ErrTransport) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func decisionLabel(accept bool) string {
	if accept {
		return "accept"
	}
	return "reject"
}
