package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/furrow/pkg/adapters/fs"
	"github.com/aretw0/furrow/pkg/adapters/github"
	"github.com/aretw0/furrow/pkg/adapters/sqlite"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/engine"
)

// SQLiteFile is the database name used when the sqlite adapter is given a
// directory.
const SQLiteFile = "furrow.db"

// New opens the local store at uri and wraps it in a core.Service.
//
//	svc, store, err := platform.New(ctx, "./notes", platform.WithAdapter("sqlite"))
func New(ctx context.Context, uri string, opts ...Option) (*core.Service, core.Store, error) {
	store, err := OpenStore(ctx, uri, opts...)
	if err != nil {
		return nil, nil, err
	}
	return core.NewService(store), store, nil
}

// OpenStore builds and initializes the local store. The uri is
// adapter-specific: a directory for "fs", a file, directory or ":memory:"
// for "sqlite".
func OpenStore(ctx context.Context, uri string, opts ...Option) (core.Store, error) {
	o := defaultOptions().apply(opts)
	if o.store != nil {
		return o.store, nil
	}

	var (
		store core.Store
		err   error
	)
	switch o.adapter {
	case "fs":
		store, err = openFS(uri, o)
	case "sqlite":
		store, err = openSQLite(uri, o)
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// resolvePath applies the dev sandbox to a store path.
func resolvePath(uri string, o *options) string {
	useTemp := o.forceTemp || (o.devSafety && IsDevRun())
	path := ResolveStorePath(uri, useTemp)
	if useTemp && path != uri {
		o.logger.Warn("running in safe mode (dev sandbox)", "original_path", uri, "resolved_path", path)
	}
	return path
}

func openFS(uri string, o *options) (core.Store, error) {
	return fs.NewRepository(fs.Config{
		Path:         resolvePath(uri, o),
		MustExist:    o.mustExist,
		SystemDir:    o.systemDir,
		Format:       o.format,
		Strict:       o.strict,
		Logger:       o.logger,
		ErrorHandler: o.errorHandler,
	})
}

func openSQLite(uri string, o *options) (core.Store, error) {
	dsn := uri
	if uri != ":memory:" {
		dsn = resolvePath(uri, o)
		if info, err := os.Stat(dsn); err == nil && info.IsDir() {
			dsn = filepath.Join(dsn, SQLiteFile)
		} else if !o.mustExist {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
		}
		if o.mustExist {
			if _, err := os.Stat(dsn); err != nil {
				return nil, fmt.Errorf("store does not exist: %s", dsn)
			}
		}
	}
	return sqlite.Open(dsn)
}

// NewEngine builds a sync engine for spaceID. Unless a remote was injected,
// it talks to the repository named in the space settings through the GitHub
// client.
func NewEngine(ctx context.Context, store core.Store, spaceID string, opts ...Option) (*engine.Engine, error) {
	o := defaultOptions().apply(opts)

	space, err := store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, fmt.Errorf("load space %s: %w", spaceID, err)
	}

	if o.token != "" {
		space.Settings.Token = o.token
	}

	api := o.api
	if api == nil {
		if space.Settings.RepoOwner == "" || space.Settings.RepoName == "" {
			return nil, fmt.Errorf("space %s has no remote repository configured", spaceID)
		}
		remoteOpts := append([]github.Option{github.WithLogger(o.logger)}, o.remoteOpts...)
		client := github.NewFromSettings(space.Settings, remoteOpts...)
		return engine.New(store, client, spaceID, engineOptions(o)...)
	}
	return engine.New(store, api(space.Settings), spaceID, engineOptions(o)...)
}

func engineOptions(o *options) []engine.Option {
	opts := []engine.Option{engine.WithLogger(o.logger)}
	if o.publisher != nil {
		opts = append(opts, engine.WithPublisher(o.publisher))
	}
	return append(opts, o.engineOpts...)
}
