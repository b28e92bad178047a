package preflight

import (
	"context"

	"github.com/56kcloud/mb-client/internal/config"
	"github.com/56kcloud/mb-client/internal/engine"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Lock directory", cfg.LockDir()),
		CheckAPIKey(cfg),
	}

	client, err := engine.NewClient(engine.Options{
		Host:          cfg.API.Host,
		WebSocketHost: cfg.API.WebSocketHost,
		APIKey:        cfg.API.APIKey,
		Timeout:       cfg.RequestTimeout(),
	})
	if err != nil {
		return append(results, Result{Name: apiCheckName, Detail: err.Error()})
	}
	return append(results, CheckAPI(ctx, client))
}
