package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/furrow/internal/platform"
)

var (
	initAdapter string
	initFormat  string
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a furrow project in the current directory",
	Long: `Write a furrow.yaml in the current directory (unless one exists) and create
the local store it points to.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fatal("Failed to get CWD", err)
		}
		path := filepath.Join(cwd, platform.ConfigFile)

		_, err = os.Stat(path)
		switch {
		case err == nil:
			fmt.Println("Using existing", path)
			if cfg, err = platform.LoadConfig(path); err != nil {
				fatal("Failed to load config", err)
			}
		case errors.Is(err, fs.ErrNotExist):
			cfg = platform.DefaultConfig()
			cfg.Store.Adapter = initAdapter
			cfg.Store.Format = initFormat
			if err := cfg.Validate(); err != nil {
				fatal("Invalid options", err)
			}
			out, err := cfg.Marshal()
			if err != nil {
				fatal("Failed to encode config", err)
			}
			if err := os.WriteFile(path, out, 0644); err != nil {
				fatal("Failed to write config", err)
			}
			cfg.Store.Path = cwd
		default:
			fatal("Failed to stat config", err)
		}

		store, err := platform.OpenStore(context.Background(), cfg.Store.Path, cfg.Options(slog.Default())...)
		if err != nil {
			fatal("Failed to initialize store", err)
		}
		defer store.Close()

		fmt.Printf("Initialized furrow project in %s (%s store)\n", cwd, cfg.Store.Adapter)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initAdapter, "adapter", "fs", "Local store: fs or sqlite")
	initCmd.Flags().StringVar(&initFormat, "format", "json", "Record format of the fs store: json or yaml")
}
