package main

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crewboard/crewboard-backend/internal/client"
	"github.com/crewboard/crewboard-backend/internal/realtime"
	"github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

var watchCmd = &cobra.Command{
	Use:   "watch <projectId>",
	Short: "Print the project board and reprint it on every change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	board, err := client.OpenBoard(ctx, apiClient(), args[0])
	if err != nil {
		return err
	}
	defer board.Close()

	printBoard(out, board.View().Tasks())
	err = board.Run(ctx, func(env realtime.Envelope) {
		fmt.Fprintf(out, "\n-- %s\n", env.Event)
		printBoard(out, board.View().Tasks())
	})
	if board.View().Closed() {
		fmt.Fprintln(out, "project is no longer available")
	}
	return err
}

// printBoard writes one column per status in workflow order.
func printBoard(w io.Writer, tasks []*domain.Task) {
	columns := make(map[domain.Status][]*domain.Task)
	for _, t := range tasks {
		columns[t.Status] = append(columns[t.Status], t)
	}

	for _, status := range domain.Statuses {
		col := columns[status]
		sort.SliceStable(col, func(i, j int) bool { return priorityRank(col[i].Priority) > priorityRank(col[j].Priority) })

		fmt.Fprintf(w, "%s (%d)\n", strings.ToUpper(string(status)), len(col))
		for _, t := range col {
			assignee := "-"
			if t.Assignee != nil {
				assignee = t.Assignee.ID
				if t.Assignee.DisplayName != "" {
					assignee = t.Assignee.DisplayName
				}
			} else if t.AssigneeID != nil {
				assignee = *t.AssigneeID
			}
			fmt.Fprintf(w, "  [%s] %-40s %-8s %s  (%d comments)\n", t.ID, t.Title, t.Priority, assignee, len(t.Comments))
		}
	}
}

func priorityRank(p domain.Priority) int {
	return slices.Index(domain.Priorities, p)
}
