package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"depmig/internal/catalog"
	"depmig/internal/config"
	"depmig/internal/logging"
	"depmig/internal/oracle"
	"depmig/internal/version"
)

var (
	// logLevelFlag is the CLI --log-level flag value
	logLevelFlag string
	// logFormatFlag is the CLI --log-format flag value
	logFormatFlag string
	// rootFlag is the CLI --config-root flag value
	rootFlag string
)

var rootCmd = &cobra.Command{
	Use:   "depmig",
	Short: "depmig - deprecated-call migration for Python codebases",
	Long: `depmig rewrites call sites of @deprecated-marked Python functions, methods,
classes and attributes to the replacement expressions their declarations
carry, leaving every byte outside a rewritten call untouched.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("depmig version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, error (default: from config)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "",
		"Log format: human, json (default: from config)")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "config-root", "",
		"Project root holding .depmig/ (default: working directory)")
}

// projectRoot resolves the effective project root.
// Precedence: --config-root > DEPMIG_ROOT env var > working directory.
func projectRoot() string {
	if rootFlag != "" {
		return rootFlag
	}
	if env := os.Getenv("DEPMIG_ROOT"); env != "" {
		return env
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// loadConfig loads and validates the project configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(projectRoot())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the logger from flags with config fallback.
func newLogger(cfg *config.Config) *logging.Logger {
	level := cfg.Logging.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	format := cfg.Logging.Format
	if logFormatFlag != "" {
		format = logFormatFlag
	}
	return logging.NewLogger(logging.Config{
		Format: logging.ParseFormat(format),
		Level:  logging.ParseLevel(level),
	})
}

// markersFromConfig converts configured marker spellings.
func markersFromConfig(cfg *config.Config) catalog.Markers {
	return catalog.Markers{
		Decorators: cfg.Markers.Decorators,
		Attributes: cfg.Markers.Attributes,
	}
}

// buildOracle constructs the configured type oracle backend. An
// override of "off" (or an oracle-less config) yields an empty static
// oracle: method calls on unknown receivers are then left unmigrated.
func buildOracle(cfg *config.Config, override string, logger *logging.Logger) (oracle.Oracle, error) {
	backend := cfg.Oracle.Backend
	if override != "" {
		backend = override
	}

	switch backend {
	case "lsp":
		return oracle.NewLSP(oracle.LSPConfig{
			Command:       cfg.Oracle.Command,
			Args:          cfg.Oracle.Args,
			WorkspaceRoot: projectRoot(),
			QueryTimeout:  time.Duration(cfg.Oracle.TimeoutMs) * time.Millisecond,
		}, logger), nil
	case "scip":
		return oracle.NewSCIP(cfg.Oracle.IndexPath, projectRoot(), logger)
	case "off":
		return oracle.NewStatic(nil), nil
	default:
		return nil, fmt.Errorf("unknown oracle backend %q", backend)
	}
}
