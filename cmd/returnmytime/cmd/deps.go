package cmd

import (
	"net/http"
	"os"
	"sync"

	"github.com/ReturnMyTime/returnmytime-cli/internal/api"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core/remote"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/ReturnMyTime/returnmytime-cli/internal/logging"
	"github.com/rs/zerolog"
)

var (
	tempsMu sync.Mutex
	temps   *core.TempRegistry
)

// tempRegistry returns the process-wide temp registry, creating it on first use.
func tempRegistry() *core.TempRegistry {
	tempsMu.Lock()
	defer tempsMu.Unlock()
	if temps == nil {
		temps = core.NewTempRegistry(logging.GetLogger("temp"))
	}
	return temps
}

// Cleanup removes every temp directory created during this process. It is
// safe to call more than once and from a signal handler.
func Cleanup() {
	tempsMu.Lock()
	reg := temps
	tempsMu.Unlock()
	if reg != nil {
		reg.Cleanup()
	}
}

// deps holds shared dependencies for CLI commands.
type deps struct {
	cfg    *core.Config
	loc    core.Location
	http   *http.Client
	logger zerolog.Logger
}

// newDeps loads configuration and resolves the scope bases. Called lazily by
// commands that need them.
func newDeps() (*deps, error) {
	cfg, err := core.NewConfigManager().Load()
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)

	loc, err := core.DefaultLocation()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal, "resolving working directories")
	}

	return &deps{
		cfg:    cfg,
		loc:    loc,
		http:   &http.Client{Timeout: cfg.HTTPTimeoutDuration()},
		logger: logging.GetLogger("cli"),
	}, nil
}

func (d *deps) discoverOptions() core.DiscoverOptions {
	return core.DiscoverOptions{IncludeInternal: d.cfg.IncludeInternal}
}

func (d *deps) orchestrator() *core.Orchestrator {
	fetcher := remote.NewFetcher(d.http, logging.GetLogger("remote"))
	o := core.NewOrchestrator(d.loc, tempRegistry(), fetcher, d.cfg.CloneTimeoutDuration(), logging.GetLogger("install"))
	o.Discover = d.discoverOptions()
	return o
}

func (d *deps) apiClient() *api.Client {
	return api.NewClient(d.cfg.API(), d.http, logging.GetLogger("api"))
}
