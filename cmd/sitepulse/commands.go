package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"

	"github.com/owcee/sitepulse/internal/adapters/scheduler"
	serveradapter "github.com/owcee/sitepulse/internal/adapters/server"
	"github.com/owcee/sitepulse/internal/adapters/server/common"
	"github.com/owcee/sitepulse/internal/app"
	"github.com/owcee/sitepulse/internal/domain"
	"github.com/owcee/sitepulse/internal/tui"
)

// Scheduler job names.
const (
	riskRefreshJob     = "risk-refresh"
	surveyReminderJob  = "survey-reminders"
	defaultReportWidth = 80
)

// withRuntime opens the runtime for one command and wraps its flow with start/complete logging.
func withRuntime(cmd *cobra.Command, opts *globalOptions, command string, flow func(context.Context, *runtimeEnv) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, cmd, opts, command)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: close runtime: %v\n", closeErr)
		}
	}()

	rt.logger.Info("command flow start", "command", command)
	if err := flow(ctx, rt); err != nil {
		rt.logger.Error("command flow failed", "command", command, "err", err)
		return err
	}
	rt.logger.Info("command flow complete", "command", command)
	return nil
}

// newPathsCommand prints resolved runtime paths without opening storage.
func newPathsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data, and log paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := opts.resolvedPaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "env: %s\n", paths.EnvPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "log: %s\n", paths.LogPath)
			return nil
		},
	}
}

// surveyTarget holds the --project/--user pair most commands share.
type surveyTarget struct {
	projectID string
	userID    string
}

func (t *surveyTarget) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&t.projectID, "project", "p", "", "project id")
	cmd.Flags().StringVarP(&t.userID, "user", "u", "", "engineer user id (defaults to identity.user_id)")
	_ = cmd.MarkFlagRequired("project")
}

// newSurveyCommand opens the interactive daily survey for one project.
func newSurveyCommand(opts *globalOptions) *cobra.Command {
	target := &surveyTarget{}
	cmd := &cobra.Command{
		Use:   "survey",
		Short: "Open today's site survey for a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "survey", func(ctx context.Context, rt *runtimeEnv) error {
				engineer, err := rt.engineer(target.userID)
				if err != nil {
					return err
				}
				ws, err := rt.svc.OpenWorkspace(engineer, target.projectID)
				if err != nil {
					return fmt.Errorf("open workspace: %w", err)
				}
				model := tui.NewModel(ws,
					tui.WithContext(ctx),
					tui.WithRiskSource(func(ctx context.Context) (domain.RiskSummary, error) {
						return rt.risk.Refresh(ctx, ws.ProjectID())
					}),
				)
				if _, err := programFactory(model).Run(); err != nil {
					return fmt.Errorf("run survey: %w", err)
				}
				return nil
			})
		},
	}
	target.bind(cmd)
	return cmd
}

// newCheckCommand reports whether today's survey is still due.
func newCheckCommand(opts *globalOptions) *cobra.Command {
	target := &surveyTarget{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether today's survey is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "check", func(ctx context.Context, rt *runtimeEnv) error {
				engineer, err := rt.engineer(target.userID)
				if err != nil {
					return err
				}
				due := rt.svc.ShouldShowSurvey(ctx, engineer.UserID, target.projectID)
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "project: %s\n", strings.TrimSpace(target.projectID))
				_, _ = fmt.Fprintf(out, "user: %s\n", engineer.UserID)
				_, _ = fmt.Fprintf(out, "due: %t\n", due)
				rec, err := rt.svc.TrackingRecord(ctx, engineer.UserID, target.projectID)
				switch {
				case errors.Is(err, app.ErrNotFound):
					_, _ = fmt.Fprintln(out, "last_survey: never")
				case err != nil:
					rt.logger.Warn("tracking record read failed", "project_id", target.projectID, "err", err)
				case rec.LastSurveyDate != nil:
					_, _ = fmt.Fprintf(out, "last_survey: %s\n", rec.LastSurveyDate.In(rt.svc.Location()).Format("2006-01-02 15:04"))
					_, _ = fmt.Fprintf(out, "skipped: %t\n", rec.Skipped)
				}
				return nil
			})
		},
	}
	target.bind(cmd)
	return cmd
}

// newSkipCommand marks today's survey as skipped.
func newSkipCommand(opts *globalOptions) *cobra.Command {
	target := &surveyTarget{}
	cmd := &cobra.Command{
		Use:   "skip",
		Short: "Skip today's survey for a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "skip", func(ctx context.Context, rt *runtimeEnv) error {
				engineer, err := rt.engineer(target.userID)
				if err != nil {
					return err
				}
				rt.svc.SkipSurveyForToday(ctx, engineer.UserID, target.projectID)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "survey skipped for today: %s\n", strings.TrimSpace(target.projectID))
				return nil
			})
		},
	}
	target.bind(cmd)
	return cmd
}

// newRiskCommand refreshes and prints delay-risk counts.
func newRiskCommand(opts *globalOptions) *cobra.Command {
	var (
		projects []string
		markdown bool
		style    string
	)
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Refresh and print delay-risk counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "risk", func(ctx context.Context, rt *runtimeEnv) error {
				targets := projects
				if len(targets) == 0 {
					targets = rt.cfg.RiskProjects()
				}
				if len(targets) == 0 {
					return errors.New("no projects: pass --project or set risk.projects")
				}
				out := cmd.OutOrStdout()
				var errs []error
				for _, projectID := range targets {
					summary, err := rt.risk.Refresh(ctx, projectID)
					if err != nil {
						errs = append(errs, fmt.Errorf("project %s: %w", projectID, err))
						continue
					}
					if markdown {
						_, _ = fmt.Fprintln(out, tui.RenderRiskReport(projectID, summary, style, defaultReportWidth))
						continue
					}
					_, _ = fmt.Fprintf(out, "%s: high=%d medium=%d low=%d total=%d\n",
						projectID, summary.HighRisk, summary.MediumRisk, summary.LowRisk, summary.Total)
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&projects, "project", "p", nil, "project id (repeatable; defaults to risk.projects)")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render a styled report")
	cmd.Flags().StringVar(&style, "style", "dark", "report style (dark, light, notty)")
	return cmd
}

// newHistoryCommand prints delivered surveys as JSON.
func newHistoryCommand(opts *globalOptions) *cobra.Command {
	var (
		projectID string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print delivered surveys for a project as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "history", func(ctx context.Context, rt *runtimeEnv) error {
				surveys, err := rt.svc.ListSurveyHistory(ctx, projectID, limit)
				if err != nil {
					return fmt.Errorf("list survey history: %w", err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(surveys)
			})
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project id")
	cmd.Flags().IntVar(&limit, "limit", 30, "maximum surveys to print")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

// newTasksCommand manages the local task catalogue.
func newTasksCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage project tasks",
	}
	cmd.AddCommand(newTasksAddCommand(opts), newTasksListCommand(opts), newTasksSetStatusCommand(opts))
	return cmd
}

func newTasksAddCommand(opts *globalOptions) *cobra.Command {
	var in app.CreateTaskInput
	var status string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "tasks add", func(ctx context.Context, rt *runtimeEnv) error {
				parsed, err := domain.ParseTaskStatus(status)
				if err != nil {
					return err
				}
				in.Status = parsed
				task, err := rt.svc.CreateTask(ctx, in)
				if err != nil {
					return fmt.Errorf("create task: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s: %s (%s)\n", task.ID, task.DisplayTitle(), task.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&in.ProjectID, "project", "p", "", "project id")
	cmd.Flags().StringVar(&in.Title, "title", "", "task title")
	cmd.Flags().StringVar(&in.SubTask, "subtask", "", "optional subtask label")
	cmd.Flags().StringVar(&status, "status", string(domain.TaskStatusNotStarted), "initial status")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTasksListCommand(opts *globalOptions) *cobra.Command {
	var (
		projectID string
		all       bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "tasks list", func(ctx context.Context, rt *runtimeEnv) error {
				tasks, err := rt.svc.ListTasks(ctx, projectID, !all)
				if err != nil {
					return fmt.Errorf("list tasks: %w", err)
				}
				if len(tasks) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no tasks")
					return nil
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), taskTable(tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project id")
	cmd.Flags().BoolVar(&all, "all", false, "include completed tasks")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newTasksSetStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <task-id> <status>",
		Short: "Move a task to not_started, in_progress, or completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, "tasks set-status", func(ctx context.Context, rt *runtimeEnv) error {
				status, err := rt.svc.SetTaskStatus(ctx, args[0], args[1])
				if err != nil {
					return fmt.Errorf("set task status: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", strings.TrimSpace(args[0]), status)
				return nil
			})
		},
	}
}

// taskTable renders tasks sorted by title then id.
func taskTable(tasks []domain.Task) string {
	sorted := slices.Clone(tasks)
	slices.SortFunc(sorted, func(a, b domain.Task) int {
		if c := strings.Compare(a.DisplayTitle(), b.DisplayTitle()); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	rows := make([][]string, 0, len(sorted))
	for _, task := range sorted {
		rows = append(rows, []string{task.ID, task.DisplayTitle(), string(task.Status)})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TASK", "STATUS").
		Rows(rows...).
		String()
}

// newRemindCommand sends survey reminders to every configured subscriber now.
func newRemindCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Send survey reminders to subscribers whose survey is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "remind", func(ctx context.Context, rt *runtimeEnv) error {
				dispatcher, err := rt.dispatcher(ctx)
				if err != nil {
					return err
				}
				sent, err := dispatcher.SendSurveyReminders(ctx)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reminders sent: %d\n", sent)
				return err
			})
		},
	}
}

// newServeCommand runs the HTTP API and MCP endpoint with scheduled jobs.
func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		bind        string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, "serve", func(ctx context.Context, rt *runtimeEnv) error {
				dispatcher, err := rt.dispatcher(ctx)
				if err != nil {
					return err
				}
				jobs, err := rt.scheduleJobs(dispatcher)
				if err != nil {
					return err
				}
				jobs.Start(ctx)
				defer jobs.Stop()

				serverCfg := serveradapter.Config{
					HTTPBind:      firstNonEmpty(bind, rt.cfg.Server.Bind),
					APIEndpoint:   firstNonEmpty(apiEndpoint, rt.cfg.Server.APIEndpoint),
					MCPEndpoint:   firstNonEmpty(mcpEndpoint, rt.cfg.Server.MCPEndpoint),
					ServerName:    "sitepulse",
					ServerVersion: version,
				}
				rt.logger.Info("serve configured", "bind", serverCfg.HTTPBind, "api", serverCfg.APIEndpoint, "mcp", serverCfg.MCPEndpoint)
				return serveCommandRunner(ctx, serverCfg, serveradapter.Dependencies{
					Surveys: common.NewAppServiceAdapter(rt.svc, rt.risk),
					Ready:   rt.backends.ready,
					Logger:  rt.logger,
				})
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "listen address (defaults to server.bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API prefix (defaults to server.api_endpoint)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP endpoint path (defaults to server.mcp_endpoint)")
	return cmd
}

// dispatcher wires the configured notifier and subscriptions.
func (r *runtimeEnv) dispatcher(ctx context.Context) (*app.Dispatcher, error) {
	notifier, err := r.backends.notifier(ctx)
	if err != nil {
		return nil, fmt.Errorf("configure notifier: %w", err)
	}
	return app.NewDispatcher(r.svc, r.risk, notifier, subscriptions(r.cfg)), nil
}

// scheduleJobs registers the periodic risk refresh and, when enabled, survey reminders.
func (r *runtimeEnv) scheduleJobs(dispatcher *app.Dispatcher) (*scheduler.Cron, error) {
	jobs := scheduler.New(r.svc.Location(), r.logger)
	if spec := strings.TrimSpace(r.cfg.Risk.PollSchedule); spec != "" {
		subscribed := dispatcher.Projects()
		if err := jobs.Add(riskRefreshJob, spec, func(ctx context.Context) error {
			var errs []error
			if err := dispatcher.RefreshRisk(ctx); err != nil {
				errs = append(errs, err)
			}
			for _, projectID := range r.cfg.RiskProjects() {
				if slices.Contains(subscribed, projectID) {
					continue
				}
				if _, err := r.risk.Refresh(ctx, projectID); err != nil {
					errs = append(errs, fmt.Errorf("project %s: %w", projectID, err))
				}
			}
			return errors.Join(errs...)
		}); err != nil {
			return nil, err
		}
	}
	if r.cfg.Reminders.Enabled {
		if err := jobs.Add(surveyReminderJob, r.cfg.Reminders.Schedule, func(ctx context.Context) error {
			sent, err := dispatcher.SendSurveyReminders(ctx)
			r.logger.Info("survey reminders dispatched", "sent", sent)
			return err
		}); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// firstNonEmpty returns the first non-blank value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
