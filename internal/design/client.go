package design

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/56kcloud/mb-client/internal/engine"
	"github.com/56kcloud/mb-client/internal/events"
	"github.com/56kcloud/mb-client/internal/logging"
	"github.com/56kcloud/mb-client/internal/tracking"
)

// Engine is the subset of the book engine used by design requests.
type Engine interface {
	CreateBook(ctx context.Context, book engine.Book) (engine.Book, error)
	UpdateBook(ctx context.Context, book engine.Book) (engine.Book, error)
	AddImage(ctx context.Context, bookID string, image engine.Image) (engine.Image, error)
	RetrieveGalleon(ctx context.Context, bookID string) (engine.Galleon, error)
	GetDesignOptions(ctx context.Context, bookSize string, imageCount int, imageFilteringLevel string) (engine.DesignOptions, error)
}

// Dialer opens the progress stream of a book.
type Dialer func(ctx context.Context, bookID string) (tracking.Stream, error)

// EngineDialer adapts an engine client to a Dialer.
func EngineDialer(c *engine.Client) Dialer {
	return func(ctx context.Context, bookID string) (tracking.Stream, error) {
		stream, err := c.DialStream(ctx, bookID)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

// Options configure a Client.
type Options struct {
	// Defaults seed the properties of new requests; zero uses DefaultProperties.
	Defaults Properties
	// Timeout is the tracking watchdog duration.
	Timeout time.Duration
	// Publisher receives progress events; nil uses the process-wide registry.
	Publisher events.Publisher
	// LockDir holds per-request lock files; empty disables cross-process locking.
	LockDir string
	Logger  *slog.Logger
}

// Client creates and opens design requests.
type Client struct {
	engine Engine
	dial   Dialer
	opts   Options
	logger *slog.Logger
}

// NewClient builds a Client.
func NewClient(eng Engine, dial Dialer, opts Options) (*Client, error) {
	if eng == nil {
		return nil, errors.New("design client requires an engine")
	}
	if dial == nil {
		return nil, errors.New("design client requires a stream dialer")
	}
	if opts.Defaults == (Properties{}) {
		opts.Defaults = DefaultProperties()
	}
	if err := opts.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default properties: %w", err)
	}
	return &Client{
		engine: eng,
		dial:   dial,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "design"),
	}, nil
}

// CreateRequest creates a book on the engine and returns a request bound to it.
func (c *Client) CreateRequest(ctx context.Context, edits Edits) (*Request, error) {
	props := c.opts.Defaults.Apply(edits)
	if err := props.Validate(); err != nil {
		return nil, err
	}
	book, err := c.engine.CreateBook(ctx, engine.Book{Title: props.Title})
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	c.logger.Info("book created", logging.String(logging.FieldRequestID, book.ID))
	return c.newRequest(book.ID, props), nil
}

// OpenRequest binds a request to an existing book without touching the engine.
func (c *Client) OpenRequest(bookID string, edits Edits) (*Request, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return nil, errors.New("book id is required")
	}
	props := c.opts.Defaults.Apply(edits)
	if err := props.Validate(); err != nil {
		return nil, err
	}
	return c.newRequest(bookID, props), nil
}

func (c *Client) newRequest(bookID string, props Properties) *Request {
	publisher := c.opts.Publisher
	if publisher == nil {
		publisher = events.Default()
	}
	return &Request{
		parentID:  bookID,
		props:     props,
		engine:    c.engine,
		dial:      c.dial,
		publisher: publisher,
		timeout:   c.opts.Timeout,
		lockDir:   c.opts.LockDir,
		baseLog:   c.opts.Logger,
		logger:    c.logger.With(logging.String(logging.FieldRequestID, bookID)),
	}
}
