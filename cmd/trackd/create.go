package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/trackd/internal/coordinator"
	"github.com/fyrsmithlabs/trackd/internal/item"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create work items, tasks, and ideas",
}

var (
	createItemType          string
	createItemPriority      string
	createItemJustification string
	createItemConfidence    float64
	createItemCriteria      []string
	createItemRisks         []string
	createItemDependsOn     []string
)

var createItemCmd = &cobra.Command{
	Use:   "item <title>",
	Short: "Create a work item in its type's initial phase",
	Long: `Create a work item. The type fixes the phase sequence the item
must traverse and the task types it must carry before leaving planning.

Examples:
  trackd create item "Streaming export" --type feature
  trackd create item "Crash on empty payload" --type bugfix
  trackd create item "Evaluate rate limiter libraries" --type research`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		wi, err := a.registry.Coordinator().CreateWorkItem(cmd.Context(), &coordinator.CreateWorkItemRequest{
			Type:               item.WorkItemType(createItemType),
			Title:              args[0],
			Priority:           item.Priority(createItemPriority),
			Justification:      createItemJustification,
			Confidence:         createItemConfidence,
			AcceptanceCriteria: createItemCriteria,
			Risks:              createItemRisks,
			DependsOn:          createItemDependsOn,
		})
		if err != nil {
			return err
		}
		return printJSON(wi)
	},
}

var (
	createTaskItem      string
	createTaskType      string
	createTaskEffort    int
	createTaskDependsOn []string
)

var createTaskCmd = &cobra.Command{
	Use:   "task <title>",
	Short: "Create a task under a work item or in the backlog",
	Long: `Create a task. Without --item the task goes to the continuous
backlog, which only the bugfix and chore types may do. The effort
estimate is validated against the type's ceiling at creation and never
again.

Examples:
  trackd create task "Wire the export endpoint" --item <id> --type implementation --effort 3
  trackd create task "Rotate stale API tokens" --type chore --effort 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		t, err := a.registry.Coordinator().CreateTask(cmd.Context(), &coordinator.CreateTaskRequest{
			WorkItemID: createTaskItem,
			Type:       item.TaskType(createTaskType),
			Title:      args[0],
			Effort:     createTaskEffort,
			DependsOn:  createTaskDependsOn,
		})
		if err != nil {
			return err
		}
		return printJSON(t)
	},
}

var createIdeaSummary string

var createIdeaCmd = &cobra.Command{
	Use:   "idea <title>",
	Short: "Capture a pre-formal idea",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		idea, err := a.registry.Coordinator().CreateIdea(cmd.Context(), &coordinator.CreateIdeaRequest{
			Title:   args[0],
			Summary: createIdeaSummary,
		})
		if err != nil {
			return err
		}
		return printJSON(idea)
	},
}

func init() {
	createItemCmd.Flags().StringVar(&createItemType, "type", "feature", "work item type (feature, bugfix, research, chore)")
	createItemCmd.Flags().StringVar(&createItemPriority, "priority", "", "priority (low, medium, high, critical)")
	createItemCmd.Flags().StringVar(&createItemJustification, "justification", "", "business justification")
	createItemCmd.Flags().Float64Var(&createItemConfidence, "confidence", 0, "discovery confidence score (0.0-1.0)")
	createItemCmd.Flags().StringArrayVar(&createItemCriteria, "criterion", nil, "acceptance criterion (repeatable)")
	createItemCmd.Flags().StringArrayVar(&createItemRisks, "risk", nil, "delivery risk (repeatable)")
	createItemCmd.Flags().StringArrayVar(&createItemDependsOn, "depends-on", nil, "work item id this item depends on (repeatable)")

	createTaskCmd.Flags().StringVar(&createTaskItem, "item", "", "parent work item id (omit for backlog tasks)")
	createTaskCmd.Flags().StringVar(&createTaskType, "type", "implementation", "task type")
	createTaskCmd.Flags().IntVar(&createTaskEffort, "effort", 0, "effort estimate in points")
	createTaskCmd.Flags().StringArrayVar(&createTaskDependsOn, "depends-on", nil, "task id this task depends on (repeatable)")

	createIdeaCmd.Flags().StringVar(&createIdeaSummary, "summary", "", "idea summary")

	createCmd.AddCommand(createItemCmd)
	createCmd.AddCommand(createTaskCmd)
	createCmd.AddCommand(createIdeaCmd)
}
