package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"depmig/internal/storage"
)

var (
	doctorFormat     string
	doctorResetCache bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration and environment issues",
	Long: `Doctor checks the project configuration, the availability of the
configured type-oracle backend, and the health of the catalog cache.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorFormat, "format", "human", "Output format (json, human)")
	doctorCmd.Flags().BoolVar(&doctorResetCache, "reset-cache", false, "Drop all cached module scans")
	rootCmd.AddCommand(doctorCmd)
}

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []doctorCheck
	add := func(name string, ok bool, format string, a ...interface{}) {
		checks = append(checks, doctorCheck{Name: name, OK: ok, Message: fmt.Sprintf(format, a...)})
	}

	cfg, err := loadConfig()
	if err != nil {
		add("config", false, "%v", err)
		return printChecks(checks)
	}
	add("config", true, "schema version %d", cfg.Version)
	logger := newLogger(cfg)

	switch cfg.Oracle.Backend {
	case "lsp":
		if path, err := exec.LookPath(cfg.Oracle.Command); err != nil {
			add("oracle", false, "%s not found on PATH; install it or set oracle.backend to off", cfg.Oracle.Command)
		} else {
			add("oracle", true, "lsp backend, server at %s", path)
		}
	case "scip":
		if _, err := os.Stat(cfg.Oracle.IndexPath); err != nil {
			add("oracle", false, "SCIP index missing at %s", cfg.Oracle.IndexPath)
		} else {
			add("oracle", true, "scip backend, index at %s", cfg.Oracle.IndexPath)
		}
	case "off":
		add("oracle", true, "disabled; method calls on typed receivers will not migrate")
	}

	if !cfg.Cache.Enabled {
		add("cache", true, "disabled")
	} else if store, err := storage.OpenCatalogStore(projectRoot(), logger); err != nil {
		add("cache", false, "%v", err)
	} else {
		defer store.Close()
		if doctorResetCache {
			if err := store.Reset(); err != nil {
				add("cache", false, "reset failed: %v", err)
			} else {
				add("cache", true, "reset, all cached scans dropped")
			}
		} else if pruned, err := store.Prune(time.Duration(cfg.Cache.MaxAgeDays) * 24 * time.Hour); err != nil {
			add("cache", false, "prune failed: %v", err)
		} else {
			entries, bytes, err := store.Stats()
			if err != nil {
				add("cache", false, "stats failed: %v", err)
			} else {
				add("cache", true, "%d entries, %d bytes, %d stale pruned", entries, bytes, pruned)
			}
		}
	}

	return printChecks(checks)
}

func printChecks(checks []doctorCheck) error {
	if doctorFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(checks); err != nil {
			return err
		}
	} else {
		for _, c := range checks {
			mark := "ok"
			if !c.OK {
				mark = "FAIL"
			}
			fmt.Printf("%-8s %-8s %s\n", c.Name, mark, c.Message)
		}
	}

	for _, c := range checks {
		if !c.OK {
			return fmt.Errorf("%d check(s) failed", failCount(checks))
		}
	}
	return nil
}

func failCount(checks []doctorCheck) int {
	n := 0
	for _, c := range checks {
		if !c.OK {
			n++
		}
	}
	return n
}
