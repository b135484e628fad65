package commands

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/silt-io/silt/internal/cli/output"
	"github.com/silt-io/silt/pkg/statedir"
	"github.com/silt-io/silt/pkg/task"
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List task state directories",
	Long: `List every task state directory under the configured state root,
with its on-disk size, whether another owner currently holds its lock, and
whether it contains any state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, dir, err := loadEnvironment()
		if err != nil {
			return err
		}

		ids, err := dir.ListTaskDirs()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No task state directories found.")
			return nil
		}

		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			size, err := dirSize(dir.DirForTask(id))
			if err != nil {
				return err
			}

			held, err := probeHeld(dir, id)
			if err != nil {
				return err
			}

			empty, err := dir.TaskDirIsEmpty(id)
			if err != nil {
				return err
			}

			rows = append(rows, []string{
				id.String(),
				formatBytes(size),
				formatBool(held, "held", "free"),
				formatBool(empty, "yes", "no"),
			})
		}

		output.PrintTable(cmd.OutOrStdout(), []string{"TASK", "SIZE", "LOCK", "EMPTY"}, rows)
		return nil
	},
}

// probeHeld reports whether the task's lock is held by any owner, by
// attempting to take it and releasing it immediately on success.
func probeHeld(dir *statedir.StateDirectory, id task.ID) (bool, error) {
	acquired, err := dir.Lock(id)
	if err != nil {
		return false, err
	}
	if !acquired {
		return true, nil
	}
	return false, dir.Unlock(id)
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatBool(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
