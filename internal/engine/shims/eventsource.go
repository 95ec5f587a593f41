package shims

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/httpclient"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// noReconnect tells the EventSource polyfill the failure is permanent
const noReconnect = -1

type stream struct {
	id     int
	cancel context.CancelFunc
	closed atomic.Bool
}

// EventStreams backs the EventSource polyfill. Each open stream reads on
// its own goroutine and posts open, message, and exactly one of error or
// close. A script-side Close suppresses every further post for the id.
type EventStreams struct {
	lane    Lane
	client  *httpclient.Client
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu     sync.Mutex
	next   int
	active map[int]*stream
	closed bool
}

// NewEventStreams creates the event stream shim
func NewEventStreams(lane Lane, client *httpclient.Client, logger *zap.Logger, metrics *monitoring.Metrics) *EventStreams {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventStreams{
		lane:    lane,
		client:  client,
		logger:  logger,
		metrics: metrics,
		active:  make(map[int]*stream),
	}
}

// Open connects to url and returns the stream id. lastEventID, when set,
// is sent as Last-Event-ID so a reconnect resumes where it stopped.
// Credentials are not forwarded; the native client keeps no cookie jar.
func (s *EventStreams) Open(url string, withCredentials bool, lastEventID string) int {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.next++
	st := &stream{id: s.next, cancel: cancel}
	closed := s.closed
	if !closed {
		s.active[st.id] = st
	}
	s.mu.Unlock()

	if closed {
		cancel()
		s.lane.Invoke(hookStreamError, []any{st.id, errShuttingDown.Error(), noReconnect}, nil)
		return st.id
	}

	s.logger.Debug("Opening event stream",
		zap.Int("id", st.id),
		zap.String("url", url),
		zap.Bool("with_credentials", withCredentials))

	go s.run(ctx, st, url, lastEventID)
	return st.id
}

// Close stops a stream. No further posts are made for id.
func (s *EventStreams) Close(id int) {
	s.mu.Lock()
	st, ok := s.active[id]
	delete(s.active, id)
	s.mu.Unlock()

	if ok {
		st.closed.Store(true)
		st.cancel()
		s.metrics.RecordNetwork("stream", "closed")
	}
}

// CloseAll closes every stream and rejects further opens
func (s *EventStreams) CloseAll() {
	s.mu.Lock()
	s.closed = true
	ids := make([]int, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Close(id)
	}
}

// Active returns the number of open streams
func (s *EventStreams) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *EventStreams) run(ctx context.Context, st *stream, url, lastEventID string) {
	header := http.Header{}
	if lastEventID != "" {
		header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := s.client.Stream(ctx, url, header)
	if err != nil {
		retry := 0
		if errors.Is(err, httpclient.ErrInvalidURL) {
			retry = noReconnect
		}
		s.finish(st, hookStreamError, err.Error(), retry)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.finish(st, hookStreamError, "unexpected status "+resp.Status, noReconnect)
		return
	}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType != "text/event-stream" {
		s.finish(st, hookStreamError, "unexpected content type "+resp.Header.Get("Content-Type"), noReconnect)
		return
	}

	s.metrics.RecordNetwork("stream", "opened")
	if !s.post(st, hookStreamOpen, st.id) {
		return
	}

	parser := &Parser{}
	err = Scan(resp.Body, parser, func(msg Message) bool {
		return s.post(st, hookStreamMessage, st.id, msg.Type, msg.Data, msg.LastEventID)
	})

	retry := int(parser.Retry().Milliseconds())
	if errors.Is(err, ErrEventTooLarge) {
		retry = noReconnect
	}
	if err != nil {
		s.finish(st, hookStreamError, err.Error(), retry)
		return
	}
	s.finish(st, hookStreamClose, "", retry)
}

func (s *EventStreams) post(st *stream, hook string, args ...any) bool {
	if st.closed.Load() {
		return false
	}
	return s.lane.Invoke(hook, args, nil)
}

// finish posts the single terminal outcome unless the script closed the
// stream first.
func (s *EventStreams) finish(st *stream, hook, message string, retryMs int) {
	s.mu.Lock()
	_, ok := s.active[st.id]
	delete(s.active, st.id)
	s.mu.Unlock()
	if !ok || st.closed.Swap(true) {
		return
	}
	st.cancel()

	if hook == hookStreamClose {
		s.metrics.RecordNetwork("stream", "ended")
		s.lane.Invoke(hook, []any{st.id, retryMs}, nil)
		return
	}

	s.logger.Debug("Event stream failed", zap.Int("id", st.id), zap.String("reason", message))
	s.metrics.RecordNetwork("stream", "error")
	s.lane.Invoke(hook, []any{st.id, message, retryMs}, nil)
}
