package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortdesk/client/internal/queue"
)

var errClosed = errors.New("connection closed")

// scriptedConn replays messages and then reports closure. With block set it
// waits for Close instead.
type scriptedConn struct {
	mu       sync.Mutex
	messages [][]byte
	block    bool
	closed   chan struct{}
	once     sync.Once
}

func newScriptedConn(block bool, messages ...string) *scriptedConn {
	c := &scriptedConn{block: block, closed: make(chan struct{})}
	for _, m := range messages {
		c.messages = append(c.messages, []byte(m))
	}
	return c
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	if len(c.messages) > 0 {
		m := c.messages[0]
		c.messages = c.messages[1:]
		c.mu.Unlock()
		return websocket.TextMessage, m, nil
	}
	c.mu.Unlock()

	if c.block {
		<-c.closed
	}
	return 0, nil, errClosed
}

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*scriptedConn
	errs  []error
	urls  []string
	dials chan int
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	n := len(d.urls)

	var conn *scriptedConn
	var err error
	if len(d.errs) > 0 {
		err, d.errs = d.errs[0], d.errs[1:]
	} else if len(d.conns) > 0 {
		conn, d.conns = d.conns[0], d.conns[1:]
	} else {
		conn = newScriptedConn(false)
	}
	d.mu.Unlock()

	if d.dials != nil {
		d.dials <- n
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// manualTimer hands every requested delay to the test, which decides when it fires.
type manualTimer struct {
	delays chan time.Duration
	fire   chan time.Time
}

func newManualTimer() *manualTimer {
	return &manualTimer{delays: make(chan time.Duration, 16), fire: make(chan time.Time)}
}

func (m *manualTimer) After(d time.Duration) <-chan time.Time {
	m.delays <- d
	return m.fire
}

func waitDelay(t *testing.T, m *manualTimer) time.Duration {
	t.Helper()
	select {
	case d := <-m.delays:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconnect delay")
		return 0
	}
}

func runChannel(t *testing.T, ch *Channel) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	return func() {
		cancelCtx()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("channel did not stop after cancel")
		}
	}
}

func TestChannel_ReconnectsAfterFixedDelay(t *testing.T) {
	dialer := &fakeDialer{}
	timer := newManualTimer()
	q := queue.New()

	ch := NewChannel(Config{
		URL:            "ws://localhost:8000/ws",
		ReconnectDelay: 5 * time.Second,
		Dialer:         dialer,
		After:          timer.After,
	}, q)
	stop := runChannel(t, ch)
	defer stop()

	for cycle := 1; cycle <= 4; cycle++ {
		d := waitDelay(t, timer)
		assert.Equal(t, 5*time.Second, d, "delay must not grow")
		assert.Equal(t, cycle, dialer.count(), "exactly one handshake per closure")
		assert.Equal(t, StateReconnecting, ch.State())
		timer.fire <- time.Now()
	}

	waitDelay(t, timer)
	assert.Equal(t, 5, dialer.count())
	for _, u := range dialer.urls {
		assert.Equal(t, "ws://localhost:8000/ws", u)
	}
}

func TestChannel_HandshakeFailureReconnects(t *testing.T) {
	dialer := &fakeDialer{errs: []error{errors.New("connection refused"), errors.New("connection refused")}}
	timer := newManualTimer()

	var mu sync.Mutex
	var transitions []string
	ch := NewChannel(Config{
		URL:    "ws://localhost:8000/ws",
		Dialer: dialer,
		After:  timer.After,
		OnStateChange: func(from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	}, queue.New())
	stop := runChannel(t, ch)
	defer stop()

	assert.Equal(t, DefaultReconnectDelay, waitDelay(t, timer))
	timer.fire <- time.Now()
	waitDelay(t, timer)
	timer.fire <- time.Now()
	waitDelay(t, timer)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"connecting->reconnecting",
		"reconnecting->connecting",
		"connecting->reconnecting",
		"reconnecting->connecting",
		"connecting->open",
		"open->reconnecting",
	}, transitions)
}

func TestChannel_UpsertsValidAndDiscardsMalformed(t *testing.T) {
	conn := newScriptedConn(true,
		`{"path":"/watched/a.txt","suggested_category":"Reports","confidence":0.6}`,
		`not json at all`,
		`{"path":"","suggested_category":"Reports","confidence":0.6}`,
		`{"path":"/watched/b.pdf","suggested_category":"Invoices","confidence":0.9}`,
		`{"path":"/watched/a.txt","suggested_category":"Others","confidence":0.4}`,
	)
	dialer := &fakeDialer{conns: []*scriptedConn{conn}, dials: make(chan int, 4)}
	q := queue.New()

	ch := NewChannel(Config{URL: "ws://x/ws", Dialer: dialer, After: newManualTimer().After}, q)
	stop := runChannel(t, ch)

	<-dialer.dials
	require.Eventually(t, func() bool { return q.Len() == 2 && ch.State() == StateOpen }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		got := q.Enumerate()
		return len(got) == 2 && got[0].Path == "/watched/a.txt" && got[0].SuggestedCategory == "Others"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateOpen, ch.State(), "malformed pushes must not affect the connection")

	stop()
	select {
	case <-conn.closed:
	default:
		t.Fatal("connection not closed on teardown")
	}
}

func TestChannel_RealWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	connections := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws", r.URL.Path)
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		connections++
		mu.Unlock()
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"path":"/watched/cv.docx","suggested_category":"Resumes","confidence":0.7}`))
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_ = c.Close()
	}))
	defer srv.Close()

	feedURL, err := URLFromOrigin(srv.URL, "/ws")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(feedURL, "ws://"))

	timer := newManualTimer()
	q := queue.New()
	ch := NewChannel(Config{URL: feedURL, After: timer.After}, q)
	stop := runChannel(t, ch)
	defer stop()

	waitDelay(t, timer)
	got, ok := q.Get("/watched/cv.docx")
	require.True(t, ok)
	assert.Equal(t, "Resumes", got.SuggestedCategory)

	timer.fire <- time.Now()
	waitDelay(t, timer)
	mu.Lock()
	assert.Equal(t, 2, connections)
	mu.Unlock()
	assert.Equal(t, 1, q.Len(), "re-pushed path must not duplicate")
}

func TestURLFromOrigin(t *testing.T) {
	tests := []struct {
		origin  string
		path    string
		want    string
		wantErr bool
	}{
		{origin: "http://localhost:8000", path: "/ws", want: "ws://localhost:8000/ws"},
		{origin: "https://files.example.com", path: "/ws", want: "wss://files.example.com/ws"},
		{origin: "HTTPS://files.example.com:8443/", path: "ws", want: "wss://files.example.com:8443/ws"},
		{origin: "http://localhost:8000?x=1", path: "", want: "ws://localhost:8000/ws"},
		{origin: "ftp://example.com", path: "/ws", wantErr: true},
		{origin: "http://", path: "/ws", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			got, err := URLFromOrigin(tt.origin, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
