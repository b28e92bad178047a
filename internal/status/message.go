package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformed marks a payload that is not a usable status notification.
var ErrMalformed = errors.New("malformed status")

// Coarse phases reported in the state field.
const (
	StateNew        = "new"
	StateStarting   = "starting"
	StateInProgress = "in progress"
	StateCompleted  = "completed"
	StateError      = "error"
)

// Slugs with special meaning to the tracker.
const (
	SlugNew     = "new"
	SlugReady   = "ready"
	SlugError   = "error"
	SlugTimeout = "timeout"
)

// TimeoutText is the message carried by the synthetic timeout notification.
const TimeoutText = "Design request timed out: no progress received from the design worker"

// Message is one decoded notification. It doubles as the detail payload of
// published progress events.
type Message struct {
	State    string `json:"state"`
	Slug     string `json:"slug"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

type wireMessage struct {
	State    *string  `json:"state"`
	Slug     *string  `json:"slug"`
	Progress *float64 `json:"progress"`
	Message  *string  `json:"message"`
}

// Decode parses a raw stream payload. Every failure wraps ErrMalformed.
func Decode(payload []byte) (Message, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return Message{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	var wire wireMessage
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var missing []string
	if wire.State == nil {
		missing = append(missing, "state")
	}
	if wire.Slug == nil {
		missing = append(missing, "slug")
	}
	if wire.Progress == nil {
		missing = append(missing, "progress")
	}
	if wire.Message == nil {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return Message{}, fmt.Errorf("%w: missing %s", ErrMalformed, strings.Join(missing, ", "))
	}

	state := strings.TrimSpace(*wire.State)
	slug := strings.TrimSpace(*wire.Slug)
	if state == "" {
		return Message{}, fmt.Errorf("%w: empty state", ErrMalformed)
	}
	if slug == "" {
		return Message{}, fmt.Errorf("%w: empty slug", ErrMalformed)
	}
	progress := *wire.Progress
	if math.IsNaN(progress) || progress < 0 || progress > 100 {
		return Message{}, fmt.Errorf("%w: progress %v out of range", ErrMalformed, progress)
	}

	return Message{
		State:    state,
		Slug:     slug,
		Progress: int(math.Round(progress)),
		Message:  *wire.Message,
	}, nil
}

// Encode renders m in the wire format accepted by Decode.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// TimeoutMessage builds the notification synthesized when the watchdog fires.
// The last known progress is carried over so listeners can show where the
// worker stalled.
func TimeoutMessage(progress int) Message {
	return Message{
		State:    StateError,
		Slug:     SlugTimeout,
		Progress: progress,
		Message:  TimeoutText,
	}
}

// Completed reports whether m marks a finished design.
func (m Message) Completed() bool {
	return m.Slug == SlugReady || m.State == StateCompleted
}

// Failed reports whether m marks the absorbing error state, timeouts included.
func (m Message) Failed() bool {
	return m.Slug == SlugError || m.Slug == SlugTimeout || m.State == StateError
}

// Terminal reports whether no further notifications may follow m.
func (m Message) Terminal() bool {
	return m.Completed() || m.Failed()
}

// Phase maps m onto the tracker's phase vocabulary: a ready slug means
// completed, an error or timeout slug means error, everything else keeps the
// reported state.
func (m Message) Phase() string {
	switch {
	case m.Failed():
		return StateError
	case m.Completed():
		return StateCompleted
	default:
		return m.State
	}
}
