package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/silt-io/silt/internal/cli/output"
	"github.com/silt-io/silt/pkg/checkpoint"
	"github.com/silt-io/silt/pkg/task"
	"github.com/spf13/cobra"
)

var offsetsCmd = &cobra.Command{
	Use:   "offsets <task-id>",
	Short: "Show a task's checkpointed changelog offsets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := task.ParseID(args[0])
		if err != nil {
			return err
		}

		_, dir, err := loadEnvironment()
		if err != nil {
			return err
		}

		cp := checkpoint.ForTaskDir(dir.DirForTask(id))
		offsets, err := cp.Read()
		if err != nil {
			return err
		}
		if len(offsets) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No checkpointed offsets for task %s.\n", id)
			return nil
		}

		rows := make([][]string, 0, len(offsets))
		for cl, off := range offsets {
			rows = append(rows, []string{
				cl.Topic,
				strconv.FormatInt(int64(cl.Partition), 10),
				strconv.FormatInt(off, 10),
			})
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i][0] != rows[j][0] {
				return rows[i][0] < rows[j][0]
			}
			return rows[i][1] < rows[j][1]
		})

		output.PrintTable(cmd.OutOrStdout(), []string{"CHANGELOG", "PARTITION", "OFFSET"}, rows)
		return nil
	},
}
