package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/56kcloud/mb-client/internal/events"
	"github.com/56kcloud/mb-client/internal/logging"
)

const appendTimeout = 5 * time.Second

// Listener returns an events.Listener that appends every event to s. Write
// failures are logged and dropped.
func (s *Store) Listener(logger *slog.Logger) events.Listener {
	logger = logging.NewComponentLogger(logger, "journal")
	return func(evt events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		defer cancel()
		if _, err := s.Append(ctx, evt); err != nil {
			logging.WarnWithContext(logger, "journal append failed", "journal_append_failed",
				logging.String(logging.FieldRequestID, evt.RequestID),
				logging.String(logging.FieldSlug, evt.Detail.Slug),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the state directory is writable"),
				logging.String(logging.FieldImpact, "transition missing from design history"),
			)
		}
	}
}

// Attach registers the journal for progress events on registry.
func (s *Store) Attach(registry *events.Registry, logger *slog.Logger) events.Subscription {
	return registry.Register(events.TypeProgressUpdated, s.Listener(logger))
}
