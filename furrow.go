package furrow

import (
	"context"
	"log/slog"

	"github.com/aretw0/furrow/internal/platform"
	"github.com/aretw0/furrow/pkg/adapters/github"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/engine"
	"github.com/aretw0/furrow/pkg/remote"
)

// --- Configuration ---

// Option configures New, OpenStore and NewEngine.
type Option = platform.Option

// Config is the on-disk configuration read from furrow.yaml.
type Config = platform.Config

// WithStore injects a ready store. Adapter options are ignored.
func WithStore(store core.Store) Option { return platform.WithStore(store) }

// WithAdapter selects the local store: "fs" (default) or "sqlite".
func WithAdapter(name string) Option { return platform.WithAdapter(name) }

// WithLogger sets the logger shared by the store, the client and the engine.
func WithLogger(logger *slog.Logger) Option { return platform.WithLogger(logger) }

// WithSystemDir sets the hidden directory of the fs store.
func WithSystemDir(name string) Option { return platform.WithSystemDir(name) }

// WithFormat sets the record format of the fs store: "json" or "yaml".
func WithFormat(format string) Option { return platform.WithFormat(format) }

// WithStrict rejects records with unknown fields.
func WithStrict(strict bool) Option { return platform.WithStrict(strict) }

// WithMustExist fails instead of creating a missing store.
func WithMustExist(must bool) Option { return platform.WithMustExist(must) }

// WithForceTemp re-roots the store in a temporary directory.
func WithForceTemp(force bool) Option { return platform.WithForceTemp(force) }

// WithDevSafety controls the sandbox applied under "go run" and "go test".
func WithDevSafety(enabled bool) Option { return platform.WithDevSafety(enabled) }

// WithWatcherErrorHandler receives errors from the fs watcher loop.
func WithWatcherErrorHandler(fn func(error)) Option { return platform.WithWatcherErrorHandler(fn) }

// WithPublisher sets where engines publish view updates.
func WithPublisher(p core.Publisher) Option { return platform.WithPublisher(p) }

// WithToken overrides the access token stored in the space settings.
func WithToken(token string) Option { return platform.WithToken(token) }

// WithRemoteOptions configures the GitHub client.
func WithRemoteOptions(opts ...github.Option) Option { return platform.WithRemoteOptions(opts...) }

// WithEngineOptions configures every engine built by NewEngine.
func WithEngineOptions(opts ...engine.Option) Option { return platform.WithEngineOptions(opts...) }

// WithRemote replaces the GitHub client.
func WithRemote(api remote.API) Option { return platform.WithRemote(api) }

// --- Factories ---

// New opens the local store at uri and wraps it in a core.Service.
func New(ctx context.Context, uri string, opts ...Option) (*core.Service, core.Store, error) {
	return platform.New(ctx, uri, opts...)
}

// OpenStore opens and initializes the local store at uri.
func OpenStore(ctx context.Context, uri string, opts ...Option) (core.Store, error) {
	return platform.OpenStore(ctx, uri, opts...)
}

// NewEngine builds the sync engine of one space.
func NewEngine(ctx context.Context, store core.Store, spaceID string, opts ...Option) (*engine.Engine, error) {
	return platform.NewEngine(ctx, store, spaceID, opts...)
}

// LoadConfig reads a furrow.yaml file and applies environment overrides.
func LoadConfig(path string) (Config, error) { return platform.LoadConfig(path) }

// FindRoot returns the nearest directory above dir holding a furrow project.
func FindRoot(dir string) (string, error) { return platform.FindRoot(dir) }
