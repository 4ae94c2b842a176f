package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/aretw0/furrow/internal/platform"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/engine"
)

var (
	pushForce bool
	pullCheck bool
)

// pushCmd represents the push command
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload local changes as one commit",
	Long: `Push the documents changed since the last sync as a single commit. The push
is rejected when the branch moved in the meantime: pull first, or pass --force.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		store := openStore(ctx)
		defer store.Close()

		var opts []platform.Option
		if pushForce {
			opts = append(opts, platform.WithEngineOptions(engine.WithForceUpdate(true)))
		}
		e := openEngine(ctx, store, resolveSpace(ctx, store), opts...)

		res, err := e.Push(ctx)
		if err != nil {
			explain(err)
			fatal("Push failed", err)
		}

		switch {
		case res.NoOp:
			fmt.Println("Nothing to push.")
		case res.Bootstrap:
			fmt.Printf("Uploaded %d entries to a new branch (%s).\n", res.Entries, shortSHA(res.Commit.SHA))
		default:
			fmt.Printf("Pushed %s: %d added, %d updated, %d deleted.\n",
				shortSHA(res.Commit.SHA), len(res.Diff.Added), len(res.Diff.Updated), len(res.Diff.Deleted))
		}
	},
}

// pullCmd represents the pull command
var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Apply the remote branch head locally",
	Long: `Pull every document of the remote branch head into the local store. Documents
that cannot be decoded are reported and skipped; the others are applied.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		store := openStore(ctx)
		defer store.Close()
		e := openEngine(ctx, store, resolveSpace(ctx, store))

		if pullCheck {
			due, err := e.IsPullDue(ctx)
			if err != nil {
				explain(err)
				fatal("Pull check failed", err)
			}
			if !due {
				fmt.Println("Already up to date.")
				return
			}
		}

		report, err := e.Pull(ctx)
		if err != nil {
			explain(err)
			fatal("Pull failed", err)
		}
		if report.Empty {
			fmt.Println("Remote branch is empty.")
			return
		}

		fmt.Printf("Pulled %s: %d documents applied.\n", shortSHA(report.Commit.SHA), len(report.Applied))
		if !report.OK() {
			for _, f := range report.Failed {
				fmt.Fprintf(os.Stderr, "  skipped %s: %v\n", f.Path, f.Err)
			}
			fmt.Fprintln(os.Stderr, "The commit was not recorded; the next pull retries the skipped documents.")
			os.Exit(2)
		}
	},
}

// explain prints a hint for errors a user can act on.
func explain(err error) {
	switch {
	case errors.Is(err, core.ErrRemoteConflict):
		fmt.Fprintln(os.Stderr, "Tip: the branch moved since it was read. Pull, then push again.")
	case errors.Is(err, core.ErrRemoteAuth):
		fmt.Fprintf(os.Stderr, "Tip: set %s to a token with contents:write on the repository.\n", platform.EnvToken)
	case errors.Is(err, core.ErrSyncInProgress):
		fmt.Fprintln(os.Stderr, "Tip: another sync of this space is running (is 'furrow watch' up?).")
	case core.IsRetryable(err):
		fmt.Fprintln(os.Stderr, "Tip: the remote is unavailable or rate limited. Try again later.")
	}
}

func init() {
	rootCmd.AddCommand(pushCmd, pullCmd)
	pushCmd.Flags().BoolVar(&pushForce, "force", false, "Overwrite a branch that moved")
	pullCmd.Flags().BoolVar(&pullCheck, "check", false, "Only pull when the remote moved and the cooldown passed")
}
