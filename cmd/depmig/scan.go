package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"depmig/internal/deps"
	"depmig/internal/rules"
)

var (
	scanFormat string
	scanDepth  int
)

var scanCmd = &cobra.Command{
	Use:   "scan <file.py>",
	Short: "Dump the deprecation catalog a file would migrate against",
	Long: `Scan builds the merged catalog for a file (the file itself plus its
imports to the configured depth) and prints every replacement rule and
every deprecated symbol that could not produce one.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanFormat, "format", "json", "Output format: json, yaml")
	scanCmd.Flags().IntVar(&scanDepth, "depth", -1, "Import traversal depth (default: from config)")
	rootCmd.AddCommand(scanCmd)
}

// scanOutput is the serialized catalog dump.
type scanOutput struct {
	Module        string                      `json:"module" yaml:"module"`
	Rules         []*rules.ReplacementRule    `json:"rules" yaml:"rules"`
	Unreplaceable []rules.UnreplaceableRecord `json:"unreplaceable,omitempty" yaml:"unreplaceable,omitempty"`
	Scanned       []string                    `json:"scannedModules" yaml:"scannedModules"`
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	depth := cfg.Resolver.Depth
	if scanDepth >= 0 {
		depth = scanDepth
	}

	depRes := deps.NewResolver(deps.Config{
		ProjectRoot: projectRoot(),
		Roots:       cfg.Resolver.Roots,
		Depth:       depth,
	}, markersFromConfig(cfg), nil, logger)

	file := args[0]
	source, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	module, ok := depRes.FileModule(file)
	if !ok {
		module = strings.TrimSuffix(filepath.Base(file), ".py")
	}

	result, err := depRes.Resolve(context.Background(), module, source)
	if err != nil {
		return err
	}

	out := scanOutput{
		Module:        module,
		Rules:         result.Catalog.Rules(),
		Unreplaceable: result.Unreplaceable,
		Scanned:       result.Scanned,
	}

	switch scanFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(out)
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", scanFormat)
	}
}
