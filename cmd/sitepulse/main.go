package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	serveradapter "github.com/owcee/sitepulse/internal/adapters/server"
	"github.com/owcee/sitepulse/internal/app"
	"github.com/owcee/sitepulse/internal/config"
	"github.com/owcee/sitepulse/internal/platform"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := fang.Execute(ctx, newRootCommand(os.Stdout, os.Stderr), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// run executes one command line against the given writers.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SilenceUsage = true
	root.SilenceErrors = true
	return root.ExecuteContext(ctx)
}

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	configPath string
	dbPath     string
	appName    string
	backend    string
	devMode    bool
}

// newRootCommand builds the sitepulse command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{appName: platform.DefaultAppName}
	if envApp := strings.TrimSpace(os.Getenv("SITEPULSE_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}
	opts.devMode = version == "dev"
	if envDev, ok := parseBoolEnv("SITEPULSE_DEV_MODE"); ok {
		opts.devMode = envDev
	}

	root := &cobra.Command{
		Use:     "sitepulse",
		Short:   "Daily site surveys and delay-risk tracking for construction projects",
		Version: version,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.StringVar(&opts.backend, "backend", "", "storage backend override (sqlite or firestore)")
	flags.BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newPathsCommand(opts),
		newSurveyCommand(opts),
		newCheckCommand(opts),
		newSkipCommand(opts),
		newRiskCommand(opts),
		newHistoryCommand(opts),
		newTasksCommand(opts),
		newRemindCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// resolvedPaths resolves the platform paths for the selected app name.
func (o *globalOptions) resolvedPaths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

// runtimeEnv holds everything a command needs once configuration is resolved.
type runtimeEnv struct {
	cfg        config.Config
	configPath string
	paths      platform.Paths
	logger     *runtimeLogger
	backends   *backends
	svc        *app.Service
	risk       *app.RiskMonitor
}

// openRuntime loads env files and config, configures logging, and opens the storage backend.
func openRuntime(ctx context.Context, cmd *cobra.Command, opts *globalOptions, command string) (*runtimeEnv, error) {
	paths, err := opts.resolvedPaths()
	if err != nil {
		return nil, err
	}
	if err := godotenv.Load(paths.EnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file %q: %w", paths.EnvPath, err)
	}

	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("SITEPULSE_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(opts.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("SITEPULSE_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	applyOverrides(&cfg, opts, dbPath, dbOverridden)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", configPath, err)
	}

	logPath := strings.TrimSpace(cfg.Logging.File)
	if logPath == "" {
		logPath = paths.LogPath
	}
	logger, err := newRuntimeLogger(cmd.ErrOrStderr(), opts.appName, cfg.Logging, logPath)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if command == "survey" {
		// Runtime logs stay in the file sink while the survey screen is active.
		logger.SetConsoleEnabled(false)
	}
	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", dbPath, "log_path", logger.FilePath())
	logger.Info("configuration loaded", "config_path", configPath, "storage", cfg.Storage.Backend, "log_level", cfg.Logging.Level)

	be, err := openBackends(ctx, cfg, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		_ = be.Close()
		_ = logger.Close()
		return nil, err
	}
	svc := app.NewService(be.repo, be.predictor, uuid.NewString, time.Now, app.ServiceConfig{
		Location:                   loc,
		RejectDuplicateSubmissions: cfg.Survey.RejectDuplicateSubmissions,
		Logger:                     logger,
	})
	logger.Debug("application service initialized", "timezone", loc.String(), "reject_duplicates", cfg.Survey.RejectDuplicateSubmissions)

	return &runtimeEnv{
		cfg:        cfg,
		configPath: configPath,
		paths:      paths,
		logger:     logger,
		backends:   be,
		svc:        svc,
		risk:       app.NewRiskMonitor(be.predictor, logger),
	}, nil
}

// applyOverrides folds flag and environment overrides into the loaded config.
func applyOverrides(cfg *config.Config, opts *globalOptions, dbPath string, dbOverridden bool) {
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if backend := strings.TrimSpace(opts.backend); backend != "" {
		cfg.Storage.Backend = config.StorageBackend(strings.ToLower(backend))
	}
	if token := strings.TrimSpace(os.Getenv("SITEPULSE_PREDICTOR_TOKEN")); token != "" {
		cfg.Predictor.Token = token
	}
	if baseURL := strings.TrimSpace(os.Getenv("SITEPULSE_PREDICTOR_URL")); baseURL != "" {
		cfg.Predictor.BaseURL = baseURL
	}
	if userID := strings.TrimSpace(os.Getenv("SITEPULSE_USER_ID")); userID != "" {
		cfg.Identity.UserID = userID
	}
	if credentials := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); credentials != "" && cfg.Firebase.CredentialsFile == "" {
		cfg.Firebase.CredentialsFile = credentials
	}
}

// Close releases the backend and the log sink.
func (r *runtimeEnv) Close() error {
	if r == nil {
		return nil
	}
	err := r.backends.Close()
	if err != nil {
		r.logger.Warn("backend close failed", "err", err)
	}
	return errors.Join(err, r.logger.Close())
}

// engineer resolves the acting engineer from flags, falling back to the identity config.
func (r *runtimeEnv) engineer(userID string) (app.Engineer, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = strings.TrimSpace(r.cfg.Identity.UserID)
	}
	if userID == "" {
		return app.Engineer{}, fmt.Errorf("a user id is required: pass --user or set identity.user_id")
	}
	return app.Engineer{UserID: userID, DisplayName: r.cfg.Identity.DisplayName}, nil
}

// parseBoolEnv parses a boolean environment variable.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
