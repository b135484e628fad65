package commands

import (
	"fmt"

	"github.com/silt-io/silt/internal/cli/prompt"
	"github.com/spf13/cobra"
)

var cleanForce bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove obsolete task state directories",
	Long: `Remove task state directories that are not locked by any owner and
have not been modified within the configured grace period (state.cleanup_grace).

Locked directories always survive; this never touches a live task.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, dir, err := loadEnvironment()
		if err != nil {
			return err
		}

		grace, err := cfg.State.CleanupGraceDuration()
		if err != nil {
			return err
		}

		ok, err := prompt.ConfirmWithForce(
			fmt.Sprintf("Remove unlocked task directories under %s older than %s?", dir.Root(), grace),
			cleanForce)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}

		removed, err := dir.CleanRemovedTasks(grace)
		if err != nil {
			return err
		}

		if len(removed) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to remove.")
			return nil
		}
		for _, id := range removed {
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanForce, "force", false, "skip the confirmation prompt")
}
