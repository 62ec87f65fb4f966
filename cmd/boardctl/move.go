package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crewboard/crewboard-backend/internal/client"
	"github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

var moveCmd = &cobra.Command{
	Use:   "move <taskId> <status>",
	Short: "Set a task's status (todo, in-progress, done, blocked)",
	Args:  cobra.ExactArgs(2),
	RunE:  runMove,
}

func runMove(cmd *cobra.Command, args []string) error {
	status := domain.Status(args[1])
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", args[1])
	}

	api := apiClient()
	task, err := api.GetTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	board, err := client.OpenBoard(cmd.Context(), api, task.ProjectID)
	if err != nil {
		return err
	}
	defer board.Close()

	moved, err := board.MoveTask(cmd.Context(), task.ID, status)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", moved.Title, task.Status, moved.Status)
	return nil
}
