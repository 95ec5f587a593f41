package shims

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/httpclient"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/monitoring"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

var errShuttingDown = errors.New("runtime shutting down")

// fetchDescriptor is the request shape the prelude's fetch() serializes
type fetchDescriptor struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body"`
}

type operation struct {
	cancel  context.CancelFunc
	started time.Time
}

// Fetch performs outbound HTTP requests for the script. Every id gets
// exactly one terminal post: resolve on any HTTP response, reject on
// transport failure or abort.
type Fetch struct {
	lane    Lane
	client  *httpclient.Client
	timeout time.Duration
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu     sync.Mutex
	next   int
	active map[int]*operation
	closed bool
}

// NewFetch creates the fetch shim
func NewFetch(lane Lane, client *httpclient.Client, timeout time.Duration, logger *zap.Logger, metrics *monitoring.Metrics) *Fetch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetch{
		lane:    lane,
		client:  client,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
		active:  make(map[int]*operation),
	}
}

// Perform starts a request described by descriptorJSON and returns its id
// immediately. Invalid descriptors are reported through the reject hook.
func (f *Fetch) Perform(descriptorJSON string) int {
	ctx, cancel := f.newContext()

	f.mu.Lock()
	f.next++
	reqID := f.next
	closed := f.closed
	if !closed {
		f.active[reqID] = &operation{cancel: cancel, started: time.Now()}
	}
	f.mu.Unlock()

	if closed {
		cancel()
		f.metrics.RecordNetwork("fetch", "aborted")
		f.lane.Invoke(hookFetchReject, []any{reqID, errShuttingDown.Error(), true}, nil)
		return reqID
	}

	var desc fetchDescriptor
	if err := sonic.UnmarshalString(descriptorJSON, &desc); err != nil {
		f.fail(reqID, "invalid request: "+err.Error())
		return reqID
	}
	req, err := desc.request()
	if err != nil {
		f.fail(reqID, err.Error())
		return reqID
	}

	go f.run(ctx, reqID, req)
	return reqID
}

// Abort cancels a request and rejects it as aborted. Unknown or finished
// ids are ignored.
func (f *Fetch) Abort(reqID int) {
	op := f.take(reqID)
	if op == nil {
		return
	}
	op.cancel()
	f.metrics.RecordNetwork("fetch", "aborted")
	f.lane.Invoke(hookFetchReject, []any{reqID, "The operation was aborted.", true}, nil)
}

// AbortAll aborts every in-flight request and rejects further ones
func (f *Fetch) AbortAll() {
	f.mu.Lock()
	f.closed = true
	ids := make([]int, 0, len(f.active))
	for id := range f.active {
		ids = append(ids, id)
	}
	f.mu.Unlock()

	for _, id := range ids {
		f.Abort(id)
	}
}

// Active returns the number of in-flight requests
func (f *Fetch) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

func (f *Fetch) run(ctx context.Context, reqID int, req httpclient.Request) {
	resp, err := f.client.Do(ctx, req)

	op := f.take(reqID)
	if op == nil {
		// Aborted meanwhile; the abort already settled the id.
		return
	}
	op.cancel()

	if err != nil {
		f.logger.Debug("Fetch failed",
			zap.Int("id", reqID),
			zap.String("url", req.URL),
			zap.Error(err))
		f.metrics.RecordNetwork("fetch", "error")
		f.lane.Invoke(hookFetchReject, []any{reqID, err.Error(), false}, nil)
		return
	}

	f.logger.Debug("Fetch completed",
		zap.Int("id", reqID),
		zap.String("method", req.Method),
		zap.Int("status", resp.Status),
		zap.Duration("elapsed", time.Since(op.started)))
	f.metrics.RecordNetwork("fetch", "ok")

	headers, _ := sonic.MarshalString(flattenHeaders(resp.Header))
	f.lane.Invoke(hookFetchResolve, []any{
		reqID,
		resp.Status,
		resp.StatusText,
		headers,
		base64.StdEncoding.EncodeToString(resp.Body),
		resp.URL,
	}, nil)
}

func (f *Fetch) fail(reqID int, message string) {
	if op := f.take(reqID); op != nil {
		op.cancel()
		f.metrics.RecordNetwork("fetch", "error")
		f.lane.Invoke(hookFetchReject, []any{reqID, message, false}, nil)
	}
}

func (f *Fetch) newContext() (context.Context, context.CancelFunc) {
	if f.timeout > 0 {
		return context.WithTimeout(context.Background(), f.timeout)
	}
	return context.WithCancel(context.Background())
}

// take removes an operation; only the caller that gets it may post the
// terminal outcome.
func (f *Fetch) take(reqID int) *operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.active[reqID]
	if !ok {
		return nil
	}
	delete(f.active, reqID)
	return op
}

func (d fetchDescriptor) request() (httpclient.Request, error) {
	req := httpclient.Request{
		Method: strings.ToUpper(strings.TrimSpace(d.Method)),
		URL:    d.URL,
		Header: make(http.Header, len(d.Headers)),
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	if d.Body != nil {
		body, err := base64.StdEncoding.DecodeString(*d.Body)
		if err != nil {
			return req, errors.New("invalid request body encoding")
		}
		req.Body = body
	}
	return req, nil
}

// flattenHeaders lowercases names and joins repeated values the way the
// fetch Headers class exposes them.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[strings.ToLower(k)] = strings.Join(vs, ", ")
	}
	return out
}
