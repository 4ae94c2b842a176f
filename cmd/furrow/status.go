package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/aretw0/introspection"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/furrow/pkg/adapters/fs"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/engine"
)

var (
	statusRemote  bool
	statusDiagram bool
)

type statusReport struct {
	Space     string            `yaml:"space"`
	Repo      string            `yaml:"repo"`
	Branch    string            `yaml:"branch"`
	Store     any               `yaml:"store,omitempty"`
	Commit    string            `yaml:"commit,omitempty"`
	Synced    string            `yaml:"synced,omitempty"`
	Documents int               `yaml:"documents"`
	Pending   map[string]string `yaml:"pending,omitempty"`
	PullDue   *bool             `yaml:"pull_due,omitempty"`
	Remote    string            `yaml:"remote_head,omitempty"`
	Engine    engine.State      `yaml:"engine"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync state of a space",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := openStore(ctx)
		defer store.Close()

		id := resolveSpace(ctx, store)
		space, err := store.GetSpace(ctx, id)
		if err != nil {
			fatal("Failed to load space", err)
		}
		docs, err := store.ListDocumentsBySpace(ctx, id)
		if err != nil {
			fatal("Failed to list documents", err)
		}

		report := statusReport{
			Space:     space.ID,
			Repo:      space.Settings.RepoOwner + "/" + space.Settings.RepoName,
			Branch:    space.Settings.BranchName(),
			Commit:    space.Commit.SHA,
			Documents: len(docs),
		}
		if !space.Commit.Date.IsZero() {
			report.Synced = space.Commit.Date.Local().Format("2006-01-02 15:04:05")
		}
		if len(space.Changes) > 0 {
			report.Pending = make(map[string]string, len(space.Changes))
			for docID, change := range space.Changes {
				report.Pending[docID] = string(change)
			}
		}
		if intro, ok := store.(introspection.Introspectable); ok {
			report.Store = intro.State()
		}

		e := openEngine(ctx, store, id)
		if statusRemote {
			due, err := e.IsPullDue(ctx)
			if err != nil {
				explain(err)
				fatal("Pull check failed", err)
			}
			report.PullDue = &due
			report.Remote = e.RemoteHead().SHA
		}
		report.Engine = e.State().(engine.State)

		if statusDiagram {
			config := introspection.DefaultDiagramConfig()
			config.SecondaryID = "furrow"
			config.SecondaryLabel = "Sync Topology"
			fmt.Println(introspection.TreeDiagram(buildTree(report, store), config))
			return
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			fatal("Failed to encode status", err)
		}
		os.Stdout.Write(out)
	},
}

type node struct {
	Name     string
	Status   string
	Metadata map[string]string
	Children []node
}

// buildTree lays out the space as a diagram. Status values match the classes
// of introspection.DefaultStyles.
func buildTree(r statusReport, store core.Store) node {
	storeNode := node{
		Name:     "Store",
		Status:   "running",
		Metadata: map[string]string{"type": "container", "documents": strconv.Itoa(r.Documents)},
	}
	if st, ok := store.(introspection.Component); ok {
		storeNode.Metadata["kind"] = st.ComponentType()
	}
	if fsState, ok := r.Store.(fs.RepositoryState); ok {
		watcher := "suspended"
		if fsState.WatcherActive {
			watcher = "running"
		}
		storeNode.Metadata["path"] = fsState.Path
		storeNode.Children = append(storeNode.Children, node{
			Name:     "Watcher",
			Status:   watcher,
			Metadata: map[string]string{"type": "goroutine"},
		})
	}

	engineStatus := "suspended"
	switch {
	case r.Engine.Busy:
		engineStatus = "running"
	case r.Engine.LastError != "":
		engineStatus = "failed"
	}
	remoteNode := node{
		Name:   "Remote",
		Status: "running",
		Metadata: map[string]string{
			"type":   "process",
			"repo":   r.Repo,
			"branch": r.Branch,
		},
	}
	if r.Remote != "" {
		remoteNode.Metadata["head"] = shortSHA(r.Remote)
	}

	return node{
		Name:   "Space " + r.Space,
		Status: "running",
		Metadata: map[string]string{
			"type":    "container",
			"commit":  shortSHA(r.Commit),
			"pending": strconv.Itoa(len(r.Pending)),
		},
		Children: []node{
			storeNode,
			{
				Name:     "Engine",
				Status:   engineStatus,
				Metadata: map[string]string{"type": "goroutine", "cooldown": r.Engine.Cooldown},
				Children: []node{remoteNode},
			},
		},
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusRemote, "remote", false, "Ask the remote whether a pull is due")
	statusCmd.Flags().BoolVar(&statusDiagram, "diagram", false, "Print a Mermaid diagram instead of YAML")
}
