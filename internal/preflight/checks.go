package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/56kcloud/mb-client/internal/config"
	"github.com/56kcloud/mb-client/internal/engine"
)

const (
	apiCheckName = "Engine API"
	apiTimeout   = 10 * time.Second
)

// Pinger is satisfied by *engine.Client.
type Pinger interface {
	Ping(ctx context.Context) error
	BaseURL() string
}

// CheckAPI verifies that the engine API is reachable and accepts the key.
func CheckAPI(ctx context.Context, client Pinger) Result {
	checkCtx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	if err := client.Ping(checkCtx); err != nil {
		return Result{Name: apiCheckName, Detail: fmt.Sprintf("%s (%s)", client.BaseURL(), summarizeAPIError(err))}
	}
	return Result{Name: apiCheckName, Passed: true, Detail: fmt.Sprintf("%s (reachable)", client.BaseURL())}
}

// CheckAPIKey reports whether an API key is configured.
func CheckAPIKey(cfg *config.Config) Result {
	const name = "API key"
	if err := cfg.RequireAPIKey(); err != nil {
		return Result{Name: name, Detail: "missing (set api.api_key or MB_API_KEY)"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeAPIError produces a human-readable summary for API check failures.
func summarizeAPIError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var apiErr *engine.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "auth failed (invalid api key)"
		default:
			return fmt.Sprintf("server error (%d)", apiErr.StatusCode)
		}
	}
	return "unreachable"
}
