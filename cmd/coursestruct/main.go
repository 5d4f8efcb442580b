// Command coursestruct (re)generates cached course structure snapshots.
//
// Usage:
//
//	coursestruct org/course/run [org/course/run ...]
//	coursestruct --all
//
// Backend selection comes from COURSESTRUCT_-prefixed environment variables
// (see pkg/coursestore/config).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/cobra"

	"github.com/tendant/coursestore/pkg/coursestore"
	"github.com/tendant/coursestore/pkg/coursestore/config"
	"github.com/tendant/coursestore/pkg/coursestore/structure"
)

const envPrefix = "COURSESTRUCT_"

type envConfig struct {
	LogLevel string `env:"COURSESTRUCT_LOG_LEVEL" env-default:"info"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		env.LogLevel = "info"
	}

	var (
		all      bool
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "coursestruct [course-key ...]",
		Short: "Generate cached course structure snapshots",
		Long: "Regenerates the cached structure snapshot for the named courses\n" +
			"(org/course/run), or for every course in the store with --all.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel)
			if !all && len(args) == 0 {
				return fmt.Errorf("either --all or at least one course key is required")
			}
			return run(cmd.Context(), logger, all, args)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "generate snapshots for all courses in the store")
	cmd.Flags().StringVar(&logLevel, "log-level", env.LogLevel, "log level (debug, info, warn, error)")
	return cmd
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(ctx context.Context, logger *slog.Logger, all bool, args []string) error {
	cfg, err := config.Load(config.WithEnv(envPrefix))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	stores, err := cfg.BuildStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()

	keys, err := resolveKeys(ctx, stores.Store, all, args)
	if err != nil {
		return err
	}

	updater := structure.NewUpdater(stores.Store, stores.Structures, logger)
	failed := 0
	for _, key := range keys {
		logger.Info("generating course structure", "course_id", key.String())
		if err := updater.Update(ctx, key); err != nil {
			// Keep going; a broken course must not block the rest.
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to generate %d of %d structures", failed, len(keys))
	}
	return nil
}

func resolveKeys(ctx context.Context, store coursestore.ModuleStore, all bool, args []string) ([]coursestore.CourseKey, error) {
	if all {
		keys, err := store.GetCourses(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list courses: %w", err)
		}
		return keys, nil
	}

	keys := make([]coursestore.CourseKey, 0, len(args))
	for _, arg := range args {
		key, err := coursestore.ParseCourseKey(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid course key %q: %w", arg, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
