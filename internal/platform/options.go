package platform

import (
	"log/slog"

	"github.com/aretw0/furrow/pkg/adapters/github"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/engine"
	"github.com/aretw0/furrow/pkg/remote"
)

// options holds the internal configuration for a furrow setup.
type options struct {
	store        core.Store
	api          func(core.Settings) remote.API
	logger       *slog.Logger
	adapter      string
	systemDir    string
	format       string
	strict       bool
	mustExist    bool
	forceTemp    bool
	devSafety    bool
	errorHandler func(error)
	publisher    core.Publisher
	token        string
	remoteOpts   []github.Option
	engineOpts   []engine.Option
}

// Option defines a functional option for configuring furrow.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		adapter:   "fs",
		devSafety: true,
	}
}

func (o *options) apply(opts []Option) *options {
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// WithStore injects a ready store (e.g. memory). Adapter options are ignored.
func WithStore(store core.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithAdapter selects the local store by name: "fs" (default) or "sqlite".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithLogger sets the logger shared by the store, the client and the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSystemDir sets the hidden directory of the fs store. Defaults to ".furrow".
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.systemDir = name
	}
}

// WithFormat sets the record format of the fs store: "json" or "yaml".
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithStrict makes the fs store reject records with unknown fields.
func WithStrict(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithMustExist fails instead of creating a missing store directory.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.mustExist = must
	}
}

// WithForceTemp re-roots the store in a temporary directory.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.forceTemp = force
	}
}

// WithDevSafety controls the sandbox used under "go run" and "go test".
// By default the store is re-rooted in a temp directory there, so a dev run
// never touches a real store.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}

// WithWatcherErrorHandler receives errors from the fs watcher loop.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}

// WithPublisher sets where engines publish view updates.
func WithPublisher(p core.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithRemoteOptions configures the GitHub client built for each space.
func WithRemoteOptions(opts ...github.Option) Option {
	return func(o *options) {
		o.remoteOpts = append(o.remoteOpts, opts...)
	}
}

// WithToken overrides the access token stored in the space settings.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithEngineOptions configures every engine built by NewEngine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// WithRemote replaces the GitHub client with api for every space (tests,
// alternative hosts).
func WithRemote(api remote.API) Option {
	return func(o *options) {
		o.api = func(core.Settings) remote.API { return api }
	}
}
