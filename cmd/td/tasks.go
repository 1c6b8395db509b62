package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamdesk/internal/app"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/repo"
)

func milestoneCmd() *cobra.Command {
	m := &cobra.Command{Use: "milestone", Short: "Manage milestones"}
	m.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active milestone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ms, err := rt.Engine.ActiveMilestone(ctx)
				if err != nil {
					return err
				}
				return printMilestones([]domain.Milestone{ms})
			})
		},
	})
	m.AddCommand(milestoneWriteCmd("set", "Create or update the active milestone (single-tenant mode)"))
	m.AddCommand(milestoneWriteCmd("create", "Create a team milestone (multi-team mode)"))
	m.AddCommand(milestoneWriteCmd("update <id>", "Update a milestone"))
	m.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List milestones visible to the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ms, err := rt.Engine.ListMilestones(ctx, actor)
				if err != nil {
					return err
				}
				return printMilestones(ms)
			})
		},
	})
	m.AddCommand(&cobra.Command{
		Use:   "summary [id]",
		Short: "Count a milestone's tasks per status (default: the active milestone)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				sum, err := rt.Engine.SummarizeMilestone(ctx, actor, id)
				if err != nil {
					return err
				}
				return printSummary(sum)
			})
		},
	})
	return m
}

func printSummary(sum engine.MilestoneSummary) error {
	if viper.GetBool("json") {
		return printJSON(sum)
	}
	fmt.Printf("%s  %s\n", sum.Milestone.ID, sum.Milestone.Title)
	tw := newTable("Status", "Tasks")
	for _, st := range []domain.TaskStatus{domain.StatusTodo, domain.StatusInProgress, domain.StatusReview, domain.StatusBlocked, domain.StatusDone} {
		tw.AppendRow(table.Row{st, sum.Counts[st]})
	}
	tw.AppendFooter(table.Row{"total", fmt.Sprintf("%d (%d done)", sum.Total, sum.Done)})
	tw.Render()
	return nil
}

// milestoneWriteCmd builds set, create and update, which share their flags.
// Only flags given on the command line are applied.
func milestoneWriteCmd(use, short string) *cobra.Command {
	var title, deadline, status, team string
	var progress int
	verb := strings.Fields(use)[0]
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args: func(cmd *cobra.Command, args []string) error {
			if verb == "update" {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.NoArgs(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			opts := engine.MilestoneOptions{ActorID: actor, TeamID: team}
			flags := cmd.Flags()
			if flags.Changed("title") {
				opts.Title = &title
			}
			if flags.Changed("deadline") {
				ms, err := parseTime(deadline)
				if err != nil {
					return err
				}
				opts.Deadline = &ms
			}
			if flags.Changed("status") {
				s := domain.MilestoneStatus(status)
				opts.Status = &s
			}
			if flags.Changed("progress") {
				opts.Progress = &progress
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				var ms domain.Milestone
				switch verb {
				case "set":
					ms, err = rt.Engine.SetActiveMilestone(ctx, opts)
				case "create":
					ms, err = rt.Engine.CreateMilestone(ctx, opts)
				default:
					ms, err = rt.Engine.UpdateMilestone(ctx, args[0], opts)
				}
				if err != nil {
					return err
				}
				return printMilestones([]domain.Milestone{ms})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "active|pending|completed")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percentage, clamped to 0..100")
	if verb == "create" {
		cmd.Flags().StringVar(&team, "team", "", "team id (super admin only; defaults to your team)")
	}
	return cmd
}

func printMilestones(ms []domain.Milestone) error {
	if viper.GetBool("json") {
		return printJSON(ms)
	}
	tw := newTable("ID", "Title", "Status", "Progress", "Deadline", "Team")
	for _, m := range ms {
		team := ""
		if m.TeamID != nil {
			team = *m.TeamID
		}
		tw.AppendRow(table.Row{m.ID, m.Title, m.Status, fmt.Sprintf("%d%%", m.Progress), optionalMillis(m.Deadline), team})
	}
	tw.Render()
	return nil
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks move freely between todo, in-progress, review, done and blocked. Blocking needs a reason; marking done is limited by the completion policy.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskViewsCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var role, priority, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task assigned to users or to a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			opts.ActorID = actor
			if role != "" {
				r, ok := domain.ParseRole(role)
				if !ok {
					return fmt.Errorf("unknown role %q", role)
				}
				opts.AssignedRole = r
			}
			opts.Priority = domain.Priority(priority)
			if due != "" {
				ms, err := parseTime(due)
				if err != nil {
					return err
				}
				opts.DueAt = &ms
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, err := rt.Engine.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrValue(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.MilestoneID, "milestone", "", "milestone id (defaults to the active milestone)")
	cmd.Flags().StringSliceVar(&opts.AssignedUserIDs, "assignee", nil, "assignee uid (repeatable)")
	cmd.Flags().StringVar(&role, "role", "", "assign to every user holding this role")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC 3339 or YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var milestone, status, role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = domain.TaskStatus(status)
			f.AssignedRole = domain.Role(role)
			if milestone != "" {
				f.MilestoneIDs = []string{milestone}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				var (
					tasks []domain.Task
					err   error
				)
				if actor := viper.GetString("as"); actor != "" {
					tasks, err = rt.Engine.ListTasksFor(ctx, actor, f)
				} else {
					tasks, err = rt.Engine.ListTasks(ctx, f)
				}
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().StringVar(&milestone, "milestone", "", "milestone filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&role, "role", "", "assigned role filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum number of tasks")
	return cmd
}

func taskViewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "Show tasks assigned to you and to people ranked below you",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				v, err := rt.Engine.TaskViews(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Println("Mine")
				if err := printTasks(v.Mine); err != nil {
					return err
				}
				fmt.Println("Subordinates")
				return printTasks(v.Subordinates)
			})
		},
	}
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task, its assignees and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, err := lookupTask(ctx, rt, args[0])
				if err != nil {
					return err
				}
				assignees, err := rt.Engine.TaskAssignees(ctx, t)
				if err != nil {
					return err
				}
				comments, err := lookupComments(ctx, rt, t.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task": t, "assignees": assignees, "comments": comments})
				}
				fmt.Printf("%s  %s\n", t.ID, t.Title)
				fmt.Printf("status: %s  priority: %s  milestone: %s  due: %s\n", t.Status, t.Priority, t.MilestoneID, optionalMillis(t.DueAt))
				if t.BlockReason != nil {
					fmt.Printf("blocked: %s\n", *t.BlockReason)
				}
				fmt.Printf("assigned by %s (%s)\n", t.AssignedByName, t.AssignedByRole)
				if t.Description != "" {
					fmt.Println(t.Description)
				}
				names := make([]string, 0, len(assignees))
				for _, u := range assignees {
					names = append(names, fmt.Sprintf("%s (%s)", u.DisplayName, u.Role))
				}
				fmt.Printf("assignees: %s\n", strings.Join(names, ", "))
				return printComments(comments)
			})
		},
	}
}

func taskStatusCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "status <id> <todo|in-progress|review|done|blocked>",
		Short: "Move a task to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, err := rt.Engine.ChangeTaskStatus(ctx, engine.TaskStatusOptions{
					ActorID:     actor,
					TaskID:      args[0],
					Status:      domain.TaskStatus(args[1]),
					BlockReason: reason,
				})
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "block reason (required for blocked)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return rt.Engine.DeleteTask(ctx, actor, args[0])
			})
		},
	}
}

func printTasks(tasks []domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	tw := newTable("ID", "Title", "Status", "Priority", "Assigned", "By", "Due")
	for _, t := range tasks {
		assigned := strings.Join(t.AssignedUserIDs, ", ")
		if t.AssignedRole != nil {
			assigned = "role:" + string(*t.AssignedRole)
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, assigned, t.AssignedByName, optionalMillis(t.DueAt)})
	}
	tw.Render()
	return nil
}

func commentCmd() *cobra.Command {
	c := &cobra.Command{Use: "comment", Short: "Task comments"}
	var text string
	add := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actingUID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cm, err := rt.Engine.AddComment(ctx, actor, args[0], text)
				if err != nil {
					return err
				}
				return printComments([]domain.TaskComment{cm})
			})
		},
	}
	add.Flags().StringVar(&text, "text", "", "comment text")
	_ = add.MarkFlagRequired("text")
	c.AddCommand(add)
	c.AddCommand(&cobra.Command{
		Use:   "list <task-id>",
		Short: "List a task's comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cs, err := lookupComments(ctx, rt, args[0])
				if err != nil {
					return err
				}
				return printComments(cs)
			})
		},
	})
	return c
}

// lookupTask reads as the --as user when one is given, so team scoping
// applies, and unscoped otherwise.
func lookupTask(ctx context.Context, rt *app.Runtime, id string) (domain.Task, error) {
	if actor := viper.GetString("as"); actor != "" {
		return rt.Engine.TaskFor(ctx, actor, id)
	}
	return rt.Engine.GetTask(ctx, id)
}

func lookupComments(ctx context.Context, rt *app.Runtime, taskID string) ([]domain.TaskComment, error) {
	if actor := viper.GetString("as"); actor != "" {
		return rt.Engine.CommentsFor(ctx, actor, taskID)
	}
	return rt.Engine.ListComments(ctx, taskID)
}

func printComments(cs []domain.TaskComment) error {
	if viper.GetBool("json") {
		return printJSON(cs)
	}
	tw := newTable("Time", "Who", "Type", "Text")
	for _, c := range cs {
		tw.AppendRow(table.Row{formatMillis(c.Timestamp), fmt.Sprintf("%s (%s)", c.UserName, c.UserRole), c.Type, c.Text})
	}
	tw.Render()
	return nil
}
