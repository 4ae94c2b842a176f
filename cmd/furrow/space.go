package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aretw0/furrow/pkg/core"
)

var (
	spaceID     string
	spaceName   string
	spaceRepo   string
	spaceBranch string
	spaceToken  string
	spaceJSON   bool
)

var spaceCmd = &cobra.Command{
	Use:   "space",
	Short: "Manage spaces and their remote repositories",
}

var spaceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a space bound to a repository",
	Long: `Create a space bound to an owner/name GitHub repository. The ID defaults to a
random UUID. The token is better left to FURROW_TOKEN than stored with --token.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		settings, err := parseSettings()
		if err != nil {
			fatal("Invalid repository", err)
		}
		if spaceID == "" {
			spaceID = uuid.NewString()
		}
		name := spaceName
		if name == "" {
			name = settings.RepoName
		}

		store := openStore(ctx)
		defer store.Close()

		if err := store.CreateSpace(ctx, core.Space{ID: spaceID, Name: name, Settings: settings}); err != nil {
			fatal("Failed to create space", err)
		}
		fmt.Printf("Space '%s' created (%s).\n", spaceID, settings.RepoOwner+"/"+settings.RepoName)
	},
}

var spaceRemoteCmd = &cobra.Command{
	Use:   "remote [id]",
	Short: "Rebind a space to another repository",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		settings, err := parseSettings()
		if err != nil {
			fatal("Invalid repository", err)
		}

		store := openStore(ctx)
		defer store.Close()

		if err := store.UpdateSpace(ctx, args[0], core.SpaceUpdate{Settings: &settings}); err != nil {
			fatal("Failed to update space", err)
		}
		fmt.Printf("Space '%s' now syncs with %s.\n", args[0], settings.RepoOwner+"/"+settings.RepoName)
	},
}

var spaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List spaces",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store := openStore(ctx)
		defer store.Close()

		spaces, err := store.ListSpaces(ctx)
		if err != nil {
			fatal("Failed to list spaces", err)
		}

		if spaceJSON {
			for i := range spaces {
				spaces[i].Settings.Token = ""
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(spaces); err != nil {
				fatal("Failed to encode JSON", err)
			}
			return
		}

		for _, sp := range spaces {
			synced := "never synced"
			if !sp.Commit.IsZero() {
				synced = "at " + shortSHA(sp.Commit.SHA)
			}
			fmt.Printf("%s %s -> %s/%s (%s, %d pending)\n",
				sp.ID, sp.Name, sp.Settings.RepoOwner, sp.Settings.RepoName, synced, len(sp.Changes))
		}
	},
}

func parseSettings() (core.Settings, error) {
	owner, name, ok := strings.Cut(spaceRepo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return core.Settings{}, errors.New("--repo must be owner/name")
	}
	return core.Settings{
		RepoOwner: owner,
		RepoName:  name,
		Branch:    spaceBranch,
		Token:     spaceToken,
	}, nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func init() {
	rootCmd.AddCommand(spaceCmd)
	spaceCmd.AddCommand(spaceCreateCmd, spaceRemoteCmd, spaceListCmd)

	for _, c := range []*cobra.Command{spaceCreateCmd, spaceRemoteCmd} {
		c.Flags().StringVar(&spaceRepo, "repo", "", "Repository as owner/name")
		c.Flags().StringVar(&spaceBranch, "branch", "", "Branch (default main)")
		c.Flags().StringVar(&spaceToken, "token", "", "Access token to store with the space")
		c.MarkFlagRequired("repo")
	}
	spaceCreateCmd.Flags().StringVar(&spaceID, "id", "", "Space ID (default: random UUID)")
	spaceCreateCmd.Flags().StringVar(&spaceName, "name", "", "Display name (default: repository name)")
	spaceListCmd.Flags().BoolVar(&spaceJSON, "json", false, "Output in JSON format")
}
