package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/56kcloud/mb-client/internal/events"
	"github.com/56kcloud/mb-client/internal/logging"
	"github.com/56kcloud/mb-client/internal/status"
)

var (
	// ErrStalledWorker is the cause recorded when the watchdog fires.
	ErrStalledWorker = errors.New("design worker stalled")
	// ErrDesignFailed is the cause recorded when the worker reports an error.
	ErrDesignFailed = errors.New("design request failed")
	// ErrStreamClosed is the cause recorded when the remote side hangs up
	// before a terminal notification.
	ErrStreamClosed = errors.New("status stream closed")
	// ErrSessionClosed is the cause recorded when the caller tears the
	// session down.
	ErrSessionClosed = errors.New("tracking session closed")
)

// Frame is one item delivered by a Stream: either a payload or the end of the
// stream. Err optionally explains an abnormal end.
type Frame struct {
	Payload []byte
	Closed  bool
	Err     error
}

// Stream is the inbound side of the worker connection. Frames must be
// delivered in arrival order; the channel may be closed instead of sending a
// Closed frame. Close must be safe to call more than once.
type Stream interface {
	Frames() <-chan Frame
	Close() error
}

// Outcome summarizes how a session ended.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeCompleted
	OutcomeFailed
	OutcomeTimedOut
	OutcomeDisconnected
	OutcomeClosed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeDisconnected:
		return "disconnected"
	case OutcomeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configure a Session.
type Options struct {
	// RequestID identifies the design request (the owning book id).
	RequestID string
	// Timeout is the watchdog duration; zero selects DefaultTimeout.
	Timeout time.Duration
	// Publisher receives accepted transitions; nil uses the process-wide
	// registry.
	Publisher events.Publisher
	Logger    *slog.Logger

	newTimer timerFactory
}

// Session tracks one design request over one stream.
type Session struct {
	id        string
	requestID string
	stream    Stream
	publisher events.Publisher
	logger    *slog.Logger

	// Owned by the run goroutine.
	watchdog *Watchdog
	dedup    Deduplicator

	closed      atomic.Bool
	stop        chan struct{}
	done        chan struct{}
	streamClose sync.Once

	mu         sync.Mutex
	current    status.Message
	hasCurrent bool
	outcome    Outcome
	cause      error
}

// Start begins consuming stream on a new goroutine and returns immediately.
func Start(stream Stream, opts Options) (*Session, error) {
	if stream == nil {
		return nil, errors.New("tracking requires a stream")
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.Default()
	}
	id := uuid.NewString()
	logger := logging.NewComponentLogger(opts.Logger, "tracking").With(
		logging.Args(
			logging.String(logging.FieldRequestID, opts.RequestID),
			logging.String(logging.FieldSessionID, id),
		)...,
	)
	s := &Session{
		id:        id,
		requestID: opts.RequestID,
		stream:    stream,
		publisher: publisher,
		logger:    logger,
		watchdog:  newWatchdog(opts.Timeout, opts.newTimer),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	// Arming before the first message lets a worker that never speaks
	// time out too.
	s.watchdog.Arm()
	s.logger.Debug("tracking session started", logging.Duration("timeout", s.watchdog.Timeout()))
	go s.run()
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// RequestID returns the tracked request identifier.
func (s *Session) RequestID() string { return s.requestID }

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Closed reports whether teardown has started.
func (s *Session) Closed() bool { return s.closed.Load() }

// Current returns the last accepted notification.
func (s *Session) Current() (status.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.hasCurrent
}

// Outcome returns how the session ended and the recorded cause. It reports
// OutcomePending while the session is live.
func (s *Session) Outcome() (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.cause
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.done:
		return s.Outcome()
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}

// Close tears the session down without publishing anything. It is safe to
// call repeatedly and from any goroutine, including a listener.
func (s *Session) Close() {
	if !s.finish(OutcomeClosed, ErrSessionClosed) {
		return
	}
	s.logger.Debug("tracking session closed by caller")
}

func (s *Session) run() {
	defer close(s.done)
	defer s.watchdog.Stop()

	frames := s.stream.Frames()
	for {
		select {
		case <-s.stop:
			return
		case frame, ok := <-frames:
			if !ok || frame.Closed {
				s.disconnected(frame.Err)
				return
			}
			if s.handlePayload(frame.Payload) {
				return
			}
		case <-s.watchdog.C():
			s.watchdog.expired()
			s.expire()
			return
		}
	}
}

// handlePayload decodes and applies one payload, reporting whether the
// session has ended.
func (s *Session) handlePayload(payload []byte) bool {
	msg, err := status.Decode(payload)
	if err != nil {
		logging.WarnWithContext(s.logger, "dropping malformed status payload", "status_malformed",
			logging.Error(err),
			logging.Int("bytes", len(payload)),
			logging.String(logging.FieldErrorHint, "the worker sent a notification without state, slug, progress and message"),
			logging.String(logging.FieldImpact, "payload ignored; watchdog keeps running"),
		)
		return s.closed.Load()
	}
	return s.apply(msg)
}

// apply runs the transition rule for msg and reports whether the session has
// ended.
func (s *Session) apply(msg status.Message) bool {
	if s.closed.Load() {
		return true
	}
	if !s.dedup.Accept(msg) {
		s.logger.Debug("duplicate status ignored",
			logging.String(logging.FieldSlug, msg.Slug),
			logging.Int(logging.FieldProgress, msg.Progress),
		)
		return false
	}

	s.mu.Lock()
	s.current = msg
	s.hasCurrent = true
	s.mu.Unlock()

	terminal := msg.Terminal()
	if terminal {
		s.watchdog.Stop()
	} else {
		s.watchdog.Arm()
	}

	s.logger.Info("design progress",
		logging.String(logging.FieldState, msg.State),
		logging.String(logging.FieldSlug, msg.Slug),
		logging.Int(logging.FieldProgress, msg.Progress),
		logging.String("message", msg.Message),
	)
	if s.closed.Load() {
		return true
	}
	s.publisher.Publish(events.Event{
		Type:      events.TypeProgressUpdated,
		RequestID: s.requestID,
		SessionID: s.id,
		Detail:    msg,
	})

	if !terminal {
		return false
	}
	outcome, cause := terminalOutcome(msg)
	s.finish(outcome, cause)
	return true
}

func (s *Session) expire() {
	if s.closed.Load() {
		return
	}
	current, _ := s.Current()
	logging.WarnWithContext(s.logger, "design worker went silent", "watchdog_expired",
		logging.Duration("timeout", s.watchdog.Timeout()),
		logging.String("last_slug", current.Slug),
		logging.String(logging.FieldErrorHint, "check the design worker for the book"),
		logging.String(logging.FieldImpact, "design request reported as timed out"),
	)
	s.apply(status.TimeoutMessage(current.Progress))
}

func (s *Session) disconnected(err error) {
	if err == nil {
		err = ErrStreamClosed
	} else {
		err = errors.Join(ErrStreamClosed, err)
	}
	if s.finish(OutcomeDisconnected, err) {
		s.logger.Info("status stream closed before a terminal state", logging.Error(err))
	}
}

// finish is the single teardown path. Only the first caller wins; it records
// the outcome, wakes the run goroutine and closes the stream.
func (s *Session) finish(outcome Outcome, cause error) bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	s.outcome = outcome
	s.cause = cause
	s.mu.Unlock()

	close(s.stop)
	s.streamClose.Do(func() {
		if err := s.stream.Close(); err != nil {
			s.logger.Debug("close status stream", logging.Error(err))
		}
	})
	return true
}

func terminalOutcome(msg status.Message) (Outcome, error) {
	switch {
	case msg.Slug == status.SlugTimeout:
		return OutcomeTimedOut, ErrStalledWorker
	case msg.Failed():
		return OutcomeFailed, ErrDesignFailed
	default:
		return OutcomeCompleted, nil
	}
}
