package design

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/56kcloud/mb-client/internal/engine"
	"github.com/56kcloud/mb-client/internal/events"
	"github.com/56kcloud/mb-client/internal/status"
	"github.com/56kcloud/mb-client/internal/tracking"
)

const testWait = 2 * time.Second

type fakeEngine struct {
	mu        sync.Mutex
	created   []engine.Book
	updated   []engine.Book
	images    []engine.Image
	optionsIn []string
	updateErr error
	galleon   engine.Galleon
}

func (f *fakeEngine) CreateBook(_ context.Context, book engine.Book) (engine.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, book)
	book.ID = fmt.Sprintf("book-%d", len(f.created))
	return book, nil
}

func (f *fakeEngine) UpdateBook(_ context.Context, book engine.Book) (engine.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return engine.Book{}, f.updateErr
	}
	f.updated = append(f.updated, book)
	return book, nil
}

func (f *fakeEngine) AddImage(_ context.Context, _ string, image engine.Image) (engine.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, image)
	return image, nil
}

func (f *fakeEngine) RetrieveGalleon(_ context.Context, bookID string) (engine.Galleon, error) {
	if f.galleon != nil {
		return f.galleon, nil
	}
	return engine.Galleon(`{"book":"` + bookID + `"}`), nil
}

func (f *fakeEngine) GetDesignOptions(_ context.Context, bookSize string, imageCount int, level string) (engine.DesignOptions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optionsIn = append(f.optionsIn, fmt.Sprintf("%s/%d/%s", bookSize, imageCount, level))
	return engine.DesignOptions{Densities: map[string]engine.DensityOption{"low": {MaxPageCount: 40}}}, nil
}

func (f *fakeEngine) lastUpdate(t *testing.T) engine.Book {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updated) == 0 {
		t.Fatal("expected an UpdateBook call")
	}
	return f.updated[len(f.updated)-1]
}

type fakeStream struct {
	frames chan tracking.Frame
	closes atomic.Int32
}

func (s *fakeStream) Frames() <-chan tracking.Frame { return s.frames }

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	return nil
}

func (s *fakeStream) send(t *testing.T, msg status.Message) {
	t.Helper()
	payload, err := status.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	select {
	case s.frames <- tracking.Frame{Payload: payload}:
	case <-time.After(testWait):
		t.Fatal("timed out delivering frame")
	}
}

type fakeDialer struct {
	mu      sync.Mutex
	streams []*fakeStream
	booked  []string
	err     error
}

func (d *fakeDialer) dial(_ context.Context, bookID string) (tracking.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.booked = append(d.booked, bookID)
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeStream{frames: make(chan tracking.Frame)}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDialer) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.streams) {
		t.Fatalf("stream %d was never dialed", i)
	}
	return d.streams[i]
}

type fixture struct {
	engine   *fakeEngine
	dialer   *fakeDialer
	registry *events.Registry
	client   *Client
	received chan events.Event
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		engine:   &fakeEngine{},
		dialer:   &fakeDialer{},
		registry: events.NewRegistry(),
		received: make(chan events.Event, 16),
	}
	f.registry.Register(events.TypeProgressUpdated, func(evt events.Event) { f.received <- evt })
	opts.Publisher = f.registry
	if opts.Timeout == 0 {
		opts.Timeout = time.Minute
	}
	client, err := NewClient(f.engine, f.dialer.dial, opts)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	f.client = client
	return f
}

func (f *fixture) next(t *testing.T) events.Event {
	t.Helper()
	select {
	case evt := <-f.received:
		return evt
	case <-time.After(testWait):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func ptr[T any](v T) *T { return &v }

func waitDone(t *testing.T, s *tracking.Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(testWait):
		t.Fatal("session did not finish")
	}
}

func TestCreateRequestCreatesBookFirst(t *testing.T) {
	f := newFixture(t, Options{})
	req, err := f.client.CreateRequest(context.Background(), Edits{Title: ptr("Summer"), Occasion: ptr("travel")})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if req.ParentID() != "book-1" {
		t.Fatalf("unexpected parent id %q", req.ParentID())
	}
	if len(f.engine.created) != 1 || f.engine.created[0].Title != "Summer" {
		t.Fatalf("unexpected created books %+v", f.engine.created)
	}
	props := req.Properties()
	if props.Occasion != "travel" || props.BookSize != BookSizes[0] || props.Style != StyleIDs()[0] {
		t.Fatalf("unexpected properties %+v", props)
	}
}

func TestCreateRequestRejectsInvalidEdits(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.client.CreateRequest(context.Background(), Edits{BookSize: ptr("3x3")})
	if !errors.Is(err, ErrInvalidProperty) {
		t.Fatalf("expected ErrInvalidProperty, got %v", err)
	}
	if len(f.engine.created) != 0 {
		t.Fatal("invalid edits must not reach the engine")
	}
}

func TestSubmitPersistsAndTracksUntilReady(t *testing.T) {
	f := newFixture(t, Options{})
	req, err := f.client.OpenRequest("book-9", Edits{})
	if err != nil {
		t.Fatalf("OpenRequest: %v", err)
	}

	session, err := req.Submit(context.Background(), Edits{ImageDensity: ptr("high"), TextStickerLevel: ptr("lots")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := f.dialer.booked; len(got) != 1 || got[0] != "book-9" {
		t.Fatalf("unexpected dials %v", got)
	}
	book := f.engine.lastUpdate(t)
	if book.ID != "book-9" || book.State != BookStateSubmitted {
		t.Fatalf("unexpected persisted book %+v", book)
	}
	if book.DesignRequest.ImageDensity != "high" || book.DesignRequest.TextStickerLevel != "lots" {
		t.Fatalf("edits were not merged: %+v", book.DesignRequest)
	}

	if _, err := req.FetchFinalArtifact(context.Background()); !errors.Is(err, ErrPrematureArtifactAccess) {
		t.Fatalf("expected ErrPrematureArtifactAccess, got %v", err)
	}

	stream := f.dialer.stream(t, 0)
	stream.send(t, status.Message{State: status.StateNew, Slug: status.SlugNew, Progress: 0, Message: "Creating design request"})
	stream.send(t, status.Message{State: status.StateNew, Slug: status.SlugNew, Progress: 0, Message: "Creating design request"})
	stream.send(t, status.Message{State: status.StateStarting, Slug: "in_progress", Progress: 20, Message: "Starting"})
	if _, err := req.FetchFinalArtifact(context.Background()); !errors.Is(err, ErrPrematureArtifactAccess) {
		t.Fatalf("expected ErrPrematureArtifactAccess mid-flight, got %v", err)
	}
	stream.send(t, status.Message{State: status.StateCompleted, Slug: status.SlugReady, Progress: 100, Message: "Design request ready"})
	waitDone(t, session)

	var slugs []string
	for i := 0; i < 3; i++ {
		evt := f.next(t)
		if evt.RequestID != "book-9" {
			t.Fatalf("unexpected request id %q", evt.RequestID)
		}
		slugs = append(slugs, evt.Detail.Slug)
	}
	if fmt.Sprint(slugs) != "[new in_progress ready]" {
		t.Fatalf("unexpected slugs %v", slugs)
	}
	if stream.closes.Load() != 1 {
		t.Fatalf("expected stream closed once, got %d", stream.closes.Load())
	}

	galleon, err := req.FetchFinalArtifact(context.Background())
	if err != nil {
		t.Fatalf("FetchFinalArtifact: %v", err)
	}
	var doc map[string]string
	if err := json.Unmarshal(galleon, &doc); err != nil || doc["book"] != "book-9" {
		t.Fatalf("unexpected galleon %s (%v)", galleon, err)
	}
}

func TestFetchFinalArtifactFromListenerAfterCompletion(t *testing.T) {
	f := newFixture(t, Options{})
	req, _ := f.client.OpenRequest("book-1", Edits{})
	artifact := make(chan error, 1)
	f.registry.Register(events.TypeProgressUpdated, func(evt events.Event) {
		if evt.Detail.Slug == status.SlugReady {
			_, err := req.FetchFinalArtifact(context.Background())
			artifact <- err
		}
	})

	session, err := req.Submit(context.Background(), Edits{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.dialer.stream(t, 0).send(t, status.Message{State: status.StateCompleted, Slug: status.SlugReady, Progress: 100, Message: "done"})
	waitDone(t, session)

	select {
	case err := <-artifact:
		if err != nil {
			t.Fatalf("expected artifact inside listener, got %v", err)
		}
	case <-time.After(testWait):
		t.Fatal("listener never ran")
	}
}

func TestTimedOutDesignKeepsArtifactUnavailable(t *testing.T) {
	f := newFixture(t, Options{Timeout: 20 * time.Millisecond})
	req, _ := f.client.OpenRequest("book-1", Edits{})
	session, err := req.Submit(context.Background(), Edits{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitDone(t, session)

	evt := f.next(t)
	if evt.Detail.Slug != status.SlugTimeout || evt.Detail.State != status.StateError {
		t.Fatalf("expected timeout event, got %+v", evt.Detail)
	}
	if _, err := req.FetchFinalArtifact(context.Background()); !errors.Is(err, ErrPrematureArtifactAccess) {
		t.Fatalf("expected ErrPrematureArtifactAccess, got %v", err)
	}
	if outcome, cause := session.Outcome(); outcome != tracking.OutcomeTimedOut || !errors.Is(cause, tracking.ErrStalledWorker) {
		t.Fatalf("unexpected outcome %v (%v)", outcome, cause)
	}
}

func TestSubmitPersistFailureClosesStream(t *testing.T) {
	f := newFixture(t, Options{})
	f.engine.updateErr = fmt.Errorf("%w: PUT /v1/books/book-1: boom", engine.ErrRemote)
	req, _ := f.client.OpenRequest("book-1", Edits{})

	session, err := req.Submit(context.Background(), Edits{})
	if !errors.Is(err, engine.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	if session != nil || req.Session() != nil {
		t.Fatal("no session may start when persistence fails")
	}
	if f.dialer.stream(t, 0).closes.Load() != 1 {
		t.Fatal("expected the dialed stream to be closed")
	}
}

func TestSubmitDialFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.dialer.err = fmt.Errorf("%w: dial refused", engine.ErrRemote)
	req, _ := f.client.OpenRequest("book-1", Edits{})

	if _, err := req.Submit(context.Background(), Edits{}); !errors.Is(err, engine.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	if len(f.engine.updated) != 0 {
		t.Fatal("request must not be persisted without a stream")
	}
}

func TestResubmitReplacesLiveSession(t *testing.T) {
	f := newFixture(t, Options{})
	req, _ := f.client.OpenRequest("book-1", Edits{})

	first, err := req.Submit(context.Background(), Edits{})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := req.Submit(context.Background(), Edits{Occasion: ptr("wedding")})
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if outcome, _ := first.Outcome(); outcome != tracking.OutcomeClosed {
		t.Fatalf("expected first session closed, got %v", outcome)
	}
	if f.dialer.stream(t, 0).closes.Load() != 1 {
		t.Fatal("expected first stream closed once")
	}
	if req.Session() != second || second.Closed() {
		t.Fatal("expected second session to be the live one")
	}
	if got := f.engine.lastUpdate(t).DesignRequest.Occasion; got != "wedding" {
		t.Fatalf("unexpected occasion %q", got)
	}
	req.Close()
	waitDone(t, second)
}

func TestFailedResubmitLeavesLiveSessionRunning(t *testing.T) {
	f := newFixture(t, Options{})
	req, _ := f.client.OpenRequest("book-1", Edits{})

	first, err := req.Submit(context.Background(), Edits{})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	defer req.Close()
	f.dialer.stream(t, 0).send(t, status.Message{State: status.StateNew, Slug: status.SlugNew, Message: "queued"})
	if evt := f.next(t); evt.Detail.Slug != status.SlugNew {
		t.Fatalf("unexpected first event %+v", evt.Detail)
	}

	f.engine.mu.Lock()
	f.engine.updateErr = fmt.Errorf("%w: PUT /v1/books/book-1: 502", engine.ErrRemote)
	f.engine.mu.Unlock()
	if _, err := req.Submit(context.Background(), Edits{Occasion: ptr("wedding")}); !errors.Is(err, engine.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}

	if first.Closed() || req.Session() != first {
		t.Fatal("a failed resubmit must leave the live session in place")
	}
	if f.dialer.stream(t, 1).closes.Load() != 1 {
		t.Fatal("expected the unused stream to be closed")
	}
	f.dialer.stream(t, 0).send(t, status.Message{State: status.StateStarting, Slug: "in_progress", Progress: 10, Message: "starting"})
	if evt := f.next(t); evt.Detail.Slug != "in_progress" || evt.SessionID != first.ID() {
		t.Fatalf("expected the first session to keep publishing, got %+v", evt)
	}
}

func TestResubmitKeepsSessionLock(t *testing.T) {
	f := newFixture(t, Options{LockDir: t.TempDir()})
	req, _ := f.client.OpenRequest("book-1", Edits{})
	other, _ := f.client.OpenRequest("book-1", Edits{})

	if _, err := req.Submit(context.Background(), Edits{}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := req.Submit(context.Background(), Edits{})
	if err != nil {
		t.Fatalf("resubmit should reuse the held lock: %v", err)
	}
	defer req.Close()

	f.engine.mu.Lock()
	f.engine.updateErr = fmt.Errorf("%w: boom", engine.ErrRemote)
	f.engine.mu.Unlock()
	if _, err := req.Submit(context.Background(), Edits{}); !errors.Is(err, engine.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	if second.Closed() {
		t.Fatal("second session must survive the failed resubmit")
	}
	if _, err := other.Submit(context.Background(), Edits{}); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("expected lock still held, got %v", err)
	}
}

func TestCloseWaitsForSession(t *testing.T) {
	f := newFixture(t, Options{})
	req, _ := f.client.OpenRequest("book-1", Edits{})
	session, err := req.Submit(context.Background(), Edits{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	req.Close()
	select {
	case <-session.Done():
	default:
		t.Fatal("Close returned before the session stopped")
	}
}

func TestSubmitRejectsInvalidEditsBeforeNetwork(t *testing.T) {
	f := newFixture(t, Options{})
	req, _ := f.client.OpenRequest("book-1", Edits{})
	if _, err := req.Submit(context.Background(), Edits{Style: ptr(1)}); !errors.Is(err, ErrInvalidProperty) {
		t.Fatalf("expected ErrInvalidProperty, got %v", err)
	}
	if len(f.dialer.booked) != 0 {
		t.Fatal("invalid edits must not dial")
	}
	if req.Properties().Style != StyleIDs()[0] {
		t.Fatal("invalid edits must not be merged")
	}
}

func TestSetCorrelationIDPersistsWithoutTouchingSession(t *testing.T) {
	f := newFixture(t, Options{})
	req, _ := f.client.OpenRequest("book-1", Edits{})
	session, err := req.Submit(context.Background(), Edits{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	defer req.Close()

	guid, err := req.SetCorrelationID(context.Background(), " guid-1 ")
	if err != nil || guid != "guid-1" {
		t.Fatalf("SetCorrelationID: %q %v", guid, err)
	}
	if got := f.engine.lastUpdate(t).GUID; got != "guid-1" {
		t.Fatalf("expected guid persisted, got %q", got)
	}
	if session.Closed() || req.GUID() != "guid-1" {
		t.Fatal("correlation id must not affect the session")
	}
	if _, err := req.SetCorrelationID(context.Background(), ""); err == nil {
		t.Fatal("expected error for blank id")
	}
}

func TestOptionsDefaultsToAttachedImages(t *testing.T) {
	f := newFixture(t, Options{})
	req, _ := f.client.OpenRequest("book-1", Edits{BookSize: ptr("12x12"), ImageFilteringLevel: ptr("most")})
	for i := 0; i < 3; i++ {
		if _, err := req.AddImage(context.Background(), engine.Image{Handle: fmt.Sprint(i), URL: "https://img/" + fmt.Sprint(i)}); err != nil {
			t.Fatalf("AddImage: %v", err)
		}
	}
	if _, err := req.AddImage(context.Background(), engine.Image{}); err == nil {
		t.Fatal("expected error for image without url")
	}
	if _, err := req.Options(context.Background(), 0); err != nil {
		t.Fatalf("Options: %v", err)
	}
	if _, err := req.Options(context.Background(), 50); err != nil {
		t.Fatalf("Options: %v", err)
	}
	if fmt.Sprint(f.engine.optionsIn) != "[12x12/3/most 12x12/50/most]" {
		t.Fatalf("unexpected option queries %v", f.engine.optionsIn)
	}
	if len(req.Images()) != 3 {
		t.Fatalf("expected 3 images, got %d", len(req.Images()))
	}
}

func TestSessionLockIsExclusiveAcrossRequests(t *testing.T) {
	lockDir := t.TempDir()
	f := newFixture(t, Options{LockDir: lockDir})
	first, _ := f.client.OpenRequest("book-1", Edits{})
	other, _ := f.client.OpenRequest("book-1", Edits{})

	session, err := first.Submit(context.Background(), Edits{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := other.Submit(context.Background(), Edits{}); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("expected ErrSessionLocked, got %v", err)
	}

	first.Close()
	waitDone(t, session)
	deadline := time.Now().Add(testWait)
	for {
		s, err := other.Submit(context.Background(), Edits{})
		if err == nil {
			other.Close()
			waitDone(t, s)
			return
		}
		if !errors.Is(err, ErrSessionLocked) || time.Now().After(deadline) {
			t.Fatalf("expected lock to be released, got %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDefaultPropertiesValidate(t *testing.T) {
	if err := DefaultProperties().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if len(Catalog()) != 9 {
		t.Fatalf("expected 9 catalog entries, got %d", len(Catalog()))
	}
	if !(Edits{}).Empty() || (Edits{Title: ptr("x")}).Empty() {
		t.Fatal("unexpected Empty result")
	}
}
