package design

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/56kcloud/mb-client/internal/engine"
	"github.com/56kcloud/mb-client/internal/events"
	"github.com/56kcloud/mb-client/internal/logging"
	"github.com/56kcloud/mb-client/internal/tracking"
)

// ErrPrematureArtifactAccess is returned when the final artifact is requested
// before the design was observed to complete.
var ErrPrematureArtifactAccess = errors.New("design request has not completed")

// BookStateSubmitted is the book state persisted on submission.
const BookStateSubmitted = "submitted"

// Request is one design request bound to a book.
type Request struct {
	parentID  string
	engine    Engine
	dial      Dialer
	publisher events.Publisher
	timeout   time.Duration
	lockDir   string
	baseLog   *slog.Logger
	logger    *slog.Logger

	// submitMu serializes Submit calls.
	submitMu sync.Mutex

	mu      sync.Mutex
	props   Properties
	images  []engine.Image
	guid    string
	session *tracking.Session
	lock    *sessionLock

	completed atomic.Bool
}

// ParentID returns the id of the owning book.
func (r *Request) ParentID() string { return r.parentID }

// Properties returns a copy of the current properties.
func (r *Request) Properties() Properties {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.props
}

// SetProperties merges edits locally without persisting them.
func (r *Request) SetProperties(edits Edits) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.props.Apply(edits)
	if err := next.Validate(); err != nil {
		return err
	}
	r.props = next
	return nil
}

// GUID returns the worker-assigned correlation id, if any.
func (r *Request) GUID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guid
}

// Images returns the images attached so far, in insertion order.
func (r *Request) Images() []engine.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Image(nil), r.images...)
}

// Session returns the live or most recent tracking session.
func (r *Request) Session() *tracking.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Completed reports whether a completion notification has been observed.
func (r *Request) Completed() bool {
	return r.completed.Load()
}

// Book renders the request as the engine book payload.
func (r *Request) Book() engine.Book {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookLocked()
}

func (r *Request) bookLocked() engine.Book {
	return engine.Book{
		ID:            r.parentID,
		Title:         r.props.Title,
		DesignRequest: r.props.wire(),
		GUID:          r.guid,
		State:         BookStateSubmitted,
	}
}

// AddImage uploads image to the book and records it locally.
func (r *Request) AddImage(ctx context.Context, image engine.Image) (engine.Image, error) {
	if strings.TrimSpace(image.URL) == "" {
		return engine.Image{}, errors.New("image url is required")
	}
	added, err := r.engine.AddImage(ctx, r.parentID, image)
	if err != nil {
		return engine.Image{}, fmt.Errorf("add image: %w", err)
	}
	r.mu.Lock()
	r.images = append(r.images, added)
	r.mu.Unlock()
	return added, nil
}

// Options lists the design densities available for the request. A
// non-positive imageCount uses the number of attached images.
func (r *Request) Options(ctx context.Context, imageCount int) (engine.DesignOptions, error) {
	r.mu.Lock()
	props := r.props
	if imageCount <= 0 {
		imageCount = len(r.images)
	}
	r.mu.Unlock()
	options, err := r.engine.GetDesignOptions(ctx, props.BookSize, imageCount, props.ImageFilteringLevel)
	if err != nil {
		return engine.DesignOptions{}, fmt.Errorf("design options: %w", err)
	}
	return options, nil
}

// Submit merges edits, persists the request and starts tracking its progress.
// A live session of this request is replaced only after the new stream is open
// and the request is persisted, so a remote failure leaves it running.
func (r *Request) Submit(ctx context.Context, edits Edits) (*tracking.Session, error) {
	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	r.mu.Lock()
	next := r.props.Apply(edits)
	if err := next.Validate(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.props = next
	r.mu.Unlock()

	acquired, err := r.holdLock()
	if err != nil {
		return nil, err
	}
	abort := func() {
		if acquired {
			r.dropLock()
		}
	}

	stream, err := r.dial(ctx, r.parentID)
	if err != nil {
		abort()
		return nil, fmt.Errorf("open progress stream: %w", err)
	}

	if _, err := r.engine.UpdateBook(ctx, r.Book()); err != nil {
		_ = stream.Close()
		abort()
		return nil, fmt.Errorf("persist design request: %w", err)
	}

	if previous := r.Session(); previous != nil {
		previous.Close()
		select {
		case <-previous.Done():
		case <-ctx.Done():
			_ = stream.Close()
			abort()
			return nil, ctx.Err()
		}
		r.logger.Debug("previous tracking session replaced", logging.String(logging.FieldSessionID, previous.ID()))
	}

	r.completed.Store(false)
	session, err := tracking.Start(stream, tracking.Options{
		RequestID: r.parentID,
		Timeout:   r.timeout,
		Publisher: completionWatcher{request: r, next: r.publisher},
		Logger:    r.baseLog,
	})
	if err != nil {
		_ = stream.Close()
		abort()
		return nil, err
	}

	r.mu.Lock()
	r.session = session
	r.mu.Unlock()
	go r.releaseAfter(session)

	r.logger.Info("design request submitted", logging.String(logging.FieldSessionID, session.ID()))
	return session, nil
}

// holdLock takes the cross-process session lock unless this request already
// holds it for an earlier session. acquired reports a fresh acquisition, which
// the caller must drop if no session ends up owning it.
func (r *Request) holdLock() (acquired bool, err error) {
	if r.lockDir == "" {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lock != nil {
		return false, nil
	}
	lock, err := acquireSessionLock(r.lockDir, r.parentID)
	if err != nil {
		return false, err
	}
	r.lock = lock
	return true, nil
}

func (r *Request) dropLock() {
	r.mu.Lock()
	lock := r.lock
	r.lock = nil
	r.mu.Unlock()
	if err := lock.release(); err != nil {
		r.logger.Debug("release session lock", logging.Error(err))
	}
}

// releaseAfter drops the session lock once session ends, unless a later
// Submit has handed the lock to a replacement session.
func (r *Request) releaseAfter(session *tracking.Session) {
	<-session.Done()
	r.submitMu.Lock()
	defer r.submitMu.Unlock()
	if r.Session() == session {
		r.dropLock()
	}
}

// SetCorrelationID records the worker-assigned id and persists the request.
// The tracking session is not affected.
func (r *Request) SetCorrelationID(ctx context.Context, guid string) (string, error) {
	guid = strings.TrimSpace(guid)
	if guid == "" {
		return "", errors.New("correlation id is required")
	}
	r.mu.Lock()
	r.guid = guid
	book := r.bookLocked()
	r.mu.Unlock()

	if _, err := r.engine.UpdateBook(ctx, book); err != nil {
		return "", fmt.Errorf("persist correlation id: %w", err)
	}
	return guid, nil
}

// FetchFinalArtifact returns the galleon of a completed design. It fails with
// ErrPrematureArtifactAccess until completion has been observed.
func (r *Request) FetchFinalArtifact(ctx context.Context) (engine.Galleon, error) {
	if !r.completed.Load() {
		return nil, ErrPrematureArtifactAccess
	}
	galleon, err := r.engine.RetrieveGalleon(ctx, r.parentID)
	if err != nil {
		return nil, fmt.Errorf("fetch galleon: %w", err)
	}
	return galleon, nil
}

// Close tears down the live tracking session, if any, and waits for it to
// stop publishing. It must not be called from an event listener.
func (r *Request) Close() {
	if session := r.Session(); session != nil {
		session.Close()
		<-session.Done()
	}
}

// completionWatcher records completion on the request before forwarding the
// event, so listeners may fetch the artifact as soon as they see it.
type completionWatcher struct {
	request *Request
	next    events.Publisher
}

func (w completionWatcher) Publish(evt events.Event) {
	if evt.Detail.Completed() && !evt.Detail.Failed() {
		w.request.completed.Store(true)
	}
	w.next.Publish(evt)
}
