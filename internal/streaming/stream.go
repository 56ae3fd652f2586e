// Package streaming turns a server-sent event stream into a push-based
// session with a single listener slot.
package streaming

import (
	"bufio"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stract/internal/errors"
	"stract/internal/metrics"
	"stract/internal/slogutil"
	"stract/internal/transport"
)

// EventType tags an Event.
type EventType string

const (
	// EventMessage carries one frame of raw text.
	EventMessage EventType = "message"
	// EventError reports a stream failure. It does not close the session.
	EventError EventType = "error"
)

// DefaultMaxFrameBytes bounds a single frame line.
const DefaultMaxFrameBytes = 2 * 1024 * 1024

// Event is one delivery to the listener. Data is set for messages, Err for errors.
type Event struct {
	Type EventType
	Data string
	Err  error
}

// Listener receives events. It is invoked from the session's reader goroutine.
// Cancel waits for a running listener to return, so a listener must not call
// Cancel on its own session.
type Listener func(Event)

// Options configures a Session.
type Options struct {
	MaxFrameBytes int
	Logger        *slog.Logger
}

// Session is a live event stream with at most one listener.
type Session struct {
	ID        string
	StartedAt time.Time

	conn     *transport.StreamConn
	logger   *slog.Logger
	maxFrame int

	mu       sync.Mutex
	listener Listener
	closed   bool

	// deliverMu is held for the whole listener call.
	deliverMu sync.Mutex

	startOnce    sync.Once
	cancelOnce   sync.Once
	teardownOnce sync.Once
	doneOnce     sync.Once
	done         chan struct{}
}

// Open connects to path through opener. Frames are read once the first
// listener is attached, so nothing is lost between Open and Listen.
func Open(ctx context.Context, opener transport.StreamOpener, path string, opts Options, callOpts ...transport.CallOption) (*Session, error) {
	conn, err := opener.OpenStream(ctx, path, callOpts...)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, opts), nil
}

// NewSession wraps an already-open connection.
func NewSession(conn *transport.StreamConn, opts Options) *Session {
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultMaxFrameBytes
	}
	metrics.OpenStreams.Inc()

	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		conn:      conn,
		logger:    slogutil.OrDiscard(opts.Logger),
		maxFrame:  opts.MaxFrameBytes,
		done:      make(chan struct{}),
	}
}

// Listen installs fn as the only listener, replacing any previous one.
// A nil fn detaches the current listener; frames arriving meanwhile are dropped.
func (s *Session) Listen(fn Listener) {
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()

	if fn != nil {
		s.startOnce.Do(func() { go s.read() })
	}
}

// Cancel closes the connection and waits for an in-flight delivery to
// finish. Once it returns no delivery is running and none will start.
// It is safe to call any number of times.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if err := s.conn.Close(); err != nil {
			s.logger.Debug("Stream close error", "session", s.ID, "error", err)
		}
		s.deliverMu.Lock() //nolint:staticcheck // waits out a running listener
		s.deliverMu.Unlock()
		s.teardown()
		// The reader never ran, so nothing else will close done.
		s.startOnce.Do(s.stopped)
	})
}

// Closed reports whether the session was cancelled or the remote side ended it.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed once no further frames will be read: after Cancel, after
// the remote side ends the stream, or after a read error.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		metrics.OpenStreams.Dec()
	})
}

func (s *Session) stopped() {
	s.doneOnce.Do(func() { close(s.done) })
}

// deliver hands ev to the current listener unless the session is closed.
func (s *Session) deliver(ev Event) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	closed, fn := s.closed, s.listener
	s.mu.Unlock()

	if closed {
		return false
	}
	metrics.StreamEvents.WithLabelValues(string(ev.Type)).Inc()
	if fn != nil {
		fn(ev)
	}
	return true
}

func (s *Session) read() {
	defer s.stopped()

	scanner := bufio.NewScanner(s.conn.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), s.maxFrame)

	var dataLines []string
	eventName := ""
	flush := func() bool {
		if len(dataLines) == 0 {
			eventName = ""
			return true
		}
		payload := strings.Join(dataLines, "\n")
		name := eventName
		dataLines = nil
		eventName = ""

		if name == string(EventError) {
			return s.deliver(Event{
				Type: EventError,
				Err:  errors.New(errors.StreamFailed, "remote stream error", errorText(payload)),
			})
		}
		return s.deliver(Event{Type: EventMessage, Data: payload})
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if !flush() {
				return
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			dataLines = append(dataLines, value)
		case "event":
			eventName = value
		}
	}

	if err := scanner.Err(); err != nil {
		// The session stays open until Cancel; the error is only reported.
		if !s.Closed() {
			s.logger.Debug("Stream read failed", "session", s.ID, "error", err)
			s.deliver(Event{
				Type: EventError,
				Err:  errors.New(errors.StreamFailed, "event stream read failed", err),
			})
		}
		return
	}

	s.logger.Debug("Stream ended", "session", s.ID, "duration", time.Since(s.StartedAt))
	s.teardown()
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("Stream close error", "session", s.ID, "error", err)
	}
}

type errorText string

func (e errorText) Error() string { return string(e) }
