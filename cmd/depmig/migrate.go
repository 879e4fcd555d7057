package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
	"github.com/spf13/cobra"

	"depmig/internal/deps"
	"depmig/internal/engine"
	"depmig/internal/logging"
	"depmig/internal/oracle"
	"depmig/internal/storage"
)

var (
	migrateWrite  bool
	migrateDiff   bool
	migrateDepth  int
	migrateOracle string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <file.py> [files...]",
	Short: "Rewrite deprecated call sites in Python files",
	Long: `Migrate scans each file's imports for deprecation rules, resolves every
call site against them, and rewrites matched calls to their declared
replacements.

By default the migrated text is printed to stdout. Use --write to modify
files in place, or --diff to print a unified diff instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateWrite, "write", false, "Rewrite files in place")
	migrateCmd.Flags().BoolVar(&migrateDiff, "diff", false, "Print a unified diff instead of the migrated text")
	migrateCmd.Flags().IntVar(&migrateDepth, "depth", -1, "Import traversal depth (default: from config)")
	migrateCmd.Flags().StringVar(&migrateOracle, "oracle", "", "Type oracle backend: lsp, scip, off (default: from config)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := context.Background()

	depth := cfg.Resolver.Depth
	if migrateDepth >= 0 {
		depth = migrateDepth
	}

	var store deps.Store
	if cfg.Cache.Enabled {
		cs, err := storage.OpenCatalogStore(projectRoot(), logger)
		if err != nil {
			logger.Warn("catalog cache unavailable, scanning without it", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer cs.Close()
			store = cs
		}
	}

	depRes := deps.NewResolver(deps.Config{
		ProjectRoot: projectRoot(),
		Roots:       cfg.Resolver.Roots,
		Depth:       depth,
	}, markersFromConfig(cfg), store, logger)

	orc, err := buildOracle(cfg, migrateOracle, logger)
	if err != nil {
		return err
	}
	defer orc.Close()

	eng := engine.New(markersFromConfig(cfg), logger)

	var failed int
	for _, file := range args {
		if err := migrateFile(ctx, eng, depRes, orc, file, logger); err != nil {
			logger.Error("migration failed", map[string]interface{}{
				"file":  file,
				"error": err.Error(),
			})
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func migrateFile(ctx context.Context, eng *engine.Engine, depRes *deps.Resolver, orc oracle.Oracle, file string, logger *logging.Logger) error {
	source, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	module, ok := depRes.FileModule(file)
	if !ok {
		module = strings.TrimSuffix(filepath.Base(file), ".py")
	}

	result, err := depRes.Resolve(ctx, module, source)
	if err != nil {
		return err
	}
	for _, rec := range result.Unreplaceable {
		logger.Info("deprecated symbol has no usable template", map[string]interface{}{
			"symbol": rec.FQN,
			"reason": string(rec.Reason),
		})
	}

	migrated, report, err := eng.Migrate(ctx, source, module, file, result.Catalog, result.Inheritance, orc)
	if err != nil {
		return err
	}

	switch {
	case migrateDiff:
		if report.Edits == 0 {
			return nil
		}
		out, err := unifiedDiff(file, string(source), migrated)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
	case migrateWrite:
		if report.Edits == 0 {
			return nil
		}
		info, err := os.Stat(file)
		if err != nil {
			return err
		}
		return os.WriteFile(file, []byte(migrated), info.Mode().Perm())
	default:
		fmt.Print(migrated)
	}
	return nil
}

// unifiedDiff renders old→new as one unified diff. The change region
// is emitted as a single hunk bounded by the common prefix and suffix.
func unifiedDiff(name, old, new string) ([]byte, error) {
	oldLines := strings.SplitAfter(old, "\n")
	newLines := strings.SplitAfter(new, "\n")

	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(oldLines)-prefix && suffix < len(newLines)-prefix &&
		oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}

	var body strings.Builder
	for _, line := range oldLines[prefix : len(oldLines)-suffix] {
		body.WriteString("-" + strings.TrimSuffix(line, "\n") + "\n")
	}
	for _, line := range newLines[prefix : len(newLines)-suffix] {
		body.WriteString("+" + strings.TrimSuffix(line, "\n") + "\n")
	}

	fd := &diff.FileDiff{
		OrigName: "a/" + name,
		NewName:  "b/" + name,
		Hunks: []*diff.Hunk{{
			OrigStartLine: int32(prefix + 1),
			OrigLines:     int32(len(oldLines) - prefix - suffix),
			NewStartLine:  int32(prefix + 1),
			NewLines:      int32(len(newLines) - prefix - suffix),
			Body:          []byte(body.String()),
		}},
	}
	return diff.PrintFileDiff(fd)
}
