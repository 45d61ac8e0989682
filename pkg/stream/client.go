package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultStreamTimeout = 5 * time.Minute

// ErrAborted is recorded on the handle when the caller aborts the stream.
var ErrAborted = errors.New("stream aborted")

// Client opens execution streams against a server-sent-events endpoint.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a stream client. A nil httpClient gets a dedicated client
// with a generous timeout; streams are long-lived by nature.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultStreamTimeout}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger.With("module", "stream"),
	}
}

// Handle is a live stream. Callbacks fire on its reader goroutine; after
// Abort returns, no further callback will fire.
type Handle struct {
	tracker *Tracker

	cancel  context.CancelFunc
	body    io.ReadCloser
	done    chan struct{}
	aborted atomic.Bool

	abortOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Stream POSTs the payload and consumes the SSE response until a terminal
// event, a transport failure, or an abort. Entries in header override the
// defaults; callers use it for auth and CSRF headers. The returned handle is
// live; the caller owns aborting it and marking still-running nodes
// afterwards.
func (c *Client) Stream(ctx context.Context, url string, payload any, header http.Header, callbacks Callbacks) (*Handle, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode stream payload: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		cancel()

		return nil, fmt.Errorf("build stream request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	for key, values := range header {
		req.Header.Del(key)

		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()

		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()

		return nil, fmt.Errorf("open stream: unexpected status %d", resp.StatusCode)
	}

	handle := &Handle{
		tracker: NewTracker(callbacks, c.logger),
		cancel:  cancel,
		body:    resp.Body,
		done:    make(chan struct{}),
	}

	go c.consume(handle, callbacks)

	return handle, nil
}

func (c *Client) consume(h *Handle, callbacks Callbacks) {
	defer close(h.done)
	defer h.body.Close()
	defer h.cancel()

	reader := bufio.NewReader(h.body)

	for {
		line, err := reader.ReadString('\n')

		// A trailing partial line at EOF is still a line.
		if len(line) > 0 {
			if finished := c.handleLine(h, line); finished {
				return
			}
		}

		if err != nil {
			if h.aborted.Load() {
				return
			}

			if errors.Is(err, io.EOF) {
				return
			}

			h.setErr(fmt.Errorf("read stream: %w", err))

			if callbacks.OnError != nil && !h.tracker.Finished() {
				callbacks.OnError("", err.Error())
			}

			return
		}
	}
}

// handleLine parses one SSE line. Only `data:` lines carry events; blank
// lines and `:` comments are protocol noise.
func (c *Client) handleLine(h *Handle, line string) bool {
	if h.aborted.Load() {
		return true
	}

	line = strings.TrimRight(line, "\r\n")

	if line == "" || strings.HasPrefix(line, ":") {
		return false
	}

	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return false
	}

	data = strings.TrimSpace(data)
	if data == "" || data == "[DONE]" {
		return false
	}

	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		c.logger.Warn("skipping unparseable stream event", "error", err)

		return false
	}

	if !event.Type.known() {
		c.logger.Warn("skipping unknown stream event", "type", event.Type)

		return false
	}

	return h.tracker.Apply(event)
}

// Abort tears the stream down. It is idempotent, blocks until the reader
// goroutine has stopped, and must not be called from a callback. Marking
// still-running nodes as failed is the caller's job; RunningNodes tells it
// which ones.
func (h *Handle) Abort() {
	h.abortOnce.Do(func() {
		h.aborted.Store(true)
		h.setErr(ErrAborted)
		h.cancel()
		h.body.Close()
	})

	<-h.done
}

// Done closes when the stream has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the terminal error: nil on clean completion, ErrAborted after
// an abort, or the transport failure.
func (h *Handle) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()

	return h.err
}

func (h *Handle) setErr(err error) {
	h.errMu.Lock()
	defer h.errMu.Unlock()

	if h.err == nil {
		h.err = err
	}
}

// RunningNodes returns the nodes still marked running by the tracker.
func (h *Handle) RunningNodes() []string {
	return h.tracker.RunningNodes()
}

// TotalCost returns the cost accumulated so far.
func (h *Handle) TotalCost() float64 {
	return h.tracker.TotalCost()
}

// NodeOutput returns the accumulated output for a node.
func (h *Handle) NodeOutput(nodeID string) string {
	return h.tracker.Output(nodeID)
}
