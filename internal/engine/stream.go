package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/56kcloud/mb-client/internal/logging"
	"github.com/56kcloud/mb-client/internal/tracking"
)

const closeWriteTimeout = time.Second

// Stream is the websocket carrying design progress for one book. It delivers
// frames in arrival order and ends with a single Closed frame.
type Stream struct {
	conn   *websocket.Conn
	frames chan tracking.Frame
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

var _ tracking.Stream = (*Stream)(nil)

// StreamURL returns the websocket address keyed by bookID.
func (c *Client) StreamURL(bookID string) string {
	u := *c.wsURL
	u.Path = "/"
	u.RawQuery = url.Values{"book_id": []string{bookID}}.Encode()
	return u.String()
}

// DialStream connects to the progress websocket for bookID, retrying
// transient dial failures with exponential backoff.
func (c *Client) DialStream(ctx context.Context, bookID string) (*Stream, error) {
	if strings.TrimSpace(bookID) == "" {
		return nil, errors.New("dial stream: book id is required")
	}
	target := c.StreamURL(bookID)
	header := http.Header{}
	header.Set("User-Agent", c.userAgent)

	var conn *websocket.Conn
	err := backoff.Retry(func() error {
		var (
			resp    *http.Response
			dialErr error
		)
		conn, resp, dialErr = websocket.DefaultDialer.DialContext(ctx, target, header)
		if dialErr == nil {
			return nil
		}
		if resp != nil && resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError &&
			resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(&APIError{Method: http.MethodGet, Path: "/?book_id=" + bookID, StatusCode: resp.StatusCode})
		}
		c.logger.Debug("retrying stream dial", logging.String(logging.FieldRequestID, bookID), logging.Error(dialErr))
		return dialErr
	}, backoff.WithContext(c.newBackoff(), ctx))
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, remoteError("DIAL", target, err)
	}

	stream := &Stream{
		conn:   conn,
		frames: make(chan tracking.Frame),
		done:   make(chan struct{}),
		logger: c.logger.With(logging.String(logging.FieldRequestID, bookID)),
	}
	go stream.pump()
	stream.logger.Debug("progress stream connected", logging.String("url", target))
	return stream, nil
}

// Frames delivers inbound payloads followed by one Closed frame.
func (s *Stream) Frames() <-chan tracking.Frame {
	return s.frames
}

// Close closes the connection. Repeated calls are no-ops.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		deadline := time.Now().Add(closeWriteTimeout)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) pump() {
	defer close(s.frames)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.deliver(tracking.Frame{Closed: true, Err: closeCause(err)})
			return
		}
		if !s.deliver(tracking.Frame{Payload: data}) {
			return
		}
	}
}

func (s *Stream) deliver(frame tracking.Frame) bool {
	select {
	case s.frames <- frame:
		return true
	case <-s.done:
		return false
	}
}

// closeCause returns nil for an orderly close by the server.
func closeCause(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return fmt.Errorf("read progress stream: %w", err)
}
