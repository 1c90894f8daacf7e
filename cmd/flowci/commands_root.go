package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	workflowFile string
	logLevel     string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:          "flowci",
	Short:        "Pipeline engine: workflow DAG → gated release",
	Long:         "flowci schedules a workflow's job DAG, fans matrix jobs out, merges their artifacts, and gates the release on aggregate success",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workflowFile, "workflow", "w", "workflow.yaml", "Workflow file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text/json)")

	registerRunCommand(rootCmd)
	registerValidateCommand(rootCmd)
	registerGraphCommand(rootCmd)
}

// newLogger configures a slog.Logger from the global flags without
// touching the global default.
func newLogger(outW io.Writer) *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(outW, opts)
	} else {
		handler = slog.NewTextHandler(outW, opts)
	}
	return slog.New(handler)
}
