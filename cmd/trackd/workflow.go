package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/trackd/internal/coordinator"
	"github.com/fyrsmithlabs/trackd/internal/item"
)

var advanceCmd = &cobra.Command{
	Use:   "advance <id>",
	Short: "Advance a work item across its next boundary",
	Long: `Advance a work item to the next phase of its type's sequence, or
along the remaining states once the final phase is reached.

A failed gate prints a block report naming every unmet criterion and
exits with code 3. Stored state is never changed on failure, so the
command can be retried after the criteria are met.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		result, err := a.registry.Coordinator().Advance(cmd.Context(), args[0])
		if err != nil {
			var gate *coordinator.GateNotSatisfiedError
			if errors.As(err, &gate) {
				// The report is the output; the exit code signals failure.
				_ = printJSON(gate.Report)
			}
			return err
		}
		return printJSON(result)
	},
}

var transitionCmd = &cobra.Command{
	Use:   "transition <id> <target>",
	Short: "Apply an explicit state transition",
	Long: `Apply a non-phase-bound transition: block, resume, or cancel.
Phase-bound transitions are rejected here; use advance so the gate is
evaluated.

Examples:
  trackd transition <id> blocked
  trackd transition <id> active     # resume to the held state
  trackd transition <id> cancelled`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		if transitionTask {
			t, err := a.registry.Coordinator().TransitionTask(cmd.Context(), args[0], item.State(args[1]))
			if err != nil {
				return err
			}
			return printJSON(t)
		}
		wi, err := a.registry.Coordinator().Transition(cmd.Context(), args[0], item.State(args[1]))
		if err != nil {
			return err
		}
		return printJSON(wi)
	},
}

var transitionTask bool

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a work item with tasks, history, and the last block report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		view, err := a.registry.Coordinator().Show(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(view)
	},
}

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "List the pooled tasks not yet finished, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		tasks, err := a.registry.Coordinator().Backlog(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(tasks)
	},
}

var ideaCmd = &cobra.Command{
	Use:   "idea",
	Short: "Advance and convert ideas",
}

var ideaAdvanceCmd = &cobra.Command{
	Use:   "advance <id> <target>",
	Short: "Move an idea along its machine (research, design, accepted, rejected)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		idea, err := a.registry.Coordinator().AdvanceIdea(cmd.Context(), args[0], item.IdeaState(args[1]))
		if err != nil {
			return err
		}
		return printJSON(idea)
	},
}

var ideaConvertType string

var ideaConvertCmd = &cobra.Command{
	Use:   "convert <id>",
	Short: "Convert an accepted idea into a new work item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		wi, err := a.registry.Coordinator().ConvertIdea(cmd.Context(), args[0], item.WorkItemType(ideaConvertType))
		if err != nil {
			return err
		}
		return printJSON(wi)
	},
}

func init() {
	transitionCmd.Flags().BoolVar(&transitionTask, "task", false, "transition a task instead of a work item")
	ideaConvertCmd.Flags().StringVar(&ideaConvertType, "type", "feature", "work item type for the converted idea")
	ideaCmd.AddCommand(ideaAdvanceCmd)
	ideaCmd.AddCommand(ideaConvertCmd)
}
