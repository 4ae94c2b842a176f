package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/furrow/internal/platform"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/engine"
)

var (
	verbose    bool
	configPath string
	storePath  string
	spaceFlag  string

	cfg platform.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "furrow",
	Short: "Two-way sync between a local document store and a GitHub repository",
	Long: `Furrow keeps a local store of JSON documents in sync with a Git repository
through the GitHub REST API. Each space maps to one repository; every push is
a single commit and every pull applies the branch head.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		path, err := resolveConfigPath()
		if err != nil {
			fatal("Failed to locate config", err)
		}
		cfg, err = platform.LoadConfig(path)
		if err != nil {
			fatal("Failed to load config", err)
		}
		if storePath != "" {
			cfg.Store.Path = storePath
		}

		level := cfg.Level()
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: furrow.yaml of the project root)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Store location, overrides the config file")
	rootCmd.PersistentFlags().StringVarP(&spaceFlag, "space", "s", "", "Space ID (default: sync.space, or the only space)")
}

// resolveConfigPath returns --config, or furrow.yaml in the nearest project
// root, or furrow.yaml in the working directory.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root, err := platform.FindRoot(cwd)
	if errors.Is(err, platform.ErrRootNotFound) {
		root = cwd
	} else if err != nil {
		return "", err
	}
	return filepath.Join(root, platform.ConfigFile), nil
}

func openStore(ctx context.Context, opts ...platform.Option) core.Store {
	all := append(cfg.Options(slog.Default()), platform.WithMustExist(true))
	store, err := platform.OpenStore(ctx, cfg.Store.Path, append(all, opts...)...)
	if err != nil {
		fatal("Failed to open store", err)
	}
	return store
}

func openEngine(ctx context.Context, store core.Store, spaceID string, opts ...platform.Option) *engine.Engine {
	all := append(cfg.Options(slog.Default()), opts...)
	e, err := platform.NewEngine(ctx, store, spaceID, all...)
	if err != nil {
		fatal("Failed to build sync engine", err)
	}
	return e
}

// resolveSpace picks the space from --space, the config file, or the only
// space of the store.
func resolveSpace(ctx context.Context, store core.Store) string {
	if spaceFlag != "" {
		return spaceFlag
	}
	if cfg.Sync.Space != "" {
		return cfg.Sync.Space
	}
	spaces, err := store.ListSpaces(ctx)
	if err != nil {
		fatal("Failed to list spaces", err)
	}
	switch len(spaces) {
	case 1:
		return spaces[0].ID
	case 0:
		fatal("No space", errors.New("create one with 'furrow space create'"))
	default:
		fatal("Ambiguous space", fmt.Errorf("%d spaces exist, pass --space", len(spaces)))
	}
	return ""
}
