// Package engine orchestrates one file's migration: parse, resolve,
// patch, verify.
package engine

import (
	"context"

	"github.com/google/uuid"

	"depmig/internal/catalog"
	"depmig/internal/logging"
	"depmig/internal/oracle"
	"depmig/internal/pysrc"
	"depmig/internal/resolver"
	"depmig/internal/rules"
)

// Report summarizes one migration pass over one file.
type Report struct {
	// RunID correlates log lines from one pass.
	RunID string `json:"runId"`

	File   string `json:"file"`
	Module string `json:"module"`

	// Edits is the number of rewrites applied.
	Edits int `json:"edits"`

	// Diagnostics lists sites the resolver looked at but left alone.
	Diagnostics []resolver.Diagnostic `json:"diagnostics,omitempty"`

	// Invalid means the migrated text failed to re-parse. The text is
	// still returned; the caller decides fatality.
	Invalid bool `json:"invalid,omitempty"`

	// OracleQueries and OracleHits describe memo traffic for the pass.
	OracleQueries int `json:"oracleQueries"`
	OracleHits    int `json:"oracleHits"`
}

// Engine migrates files against a prepared catalog.
type Engine struct {
	markers catalog.Markers
	logger  *logging.Logger
}

// New creates an engine.
func New(markers catalog.Markers, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{
		markers: markers,
		logger:  logger,
	}
}

// Migrate rewrites deprecated call sites in source and returns the
// migrated text. It is pure over its inputs except for type-oracle side
// effects: the file is opened with the oracle before resolution and
// updated with the migrated text after, so analysis of later files sees
// the new state.
//
// Catalog and index are read read-only; separate files may be migrated
// concurrently against the same catalog, each call owning its own memo
// and edit list.
func (e *Engine) Migrate(ctx context.Context, source []byte, moduleName, filePath string, cat *rules.Catalog, inherit *rules.InheritanceIndex, orc oracle.Oracle) (string, *Report, error) {
	report := &Report{
		RunID:  uuid.NewString(),
		File:   filePath,
		Module: moduleName,
	}
	log := e.logger.With(map[string]interface{}{"runId": report.RunID, "file": filePath})

	// Each pass owns its parser; tree-sitter parsers are not safe to
	// share across concurrent file migrations.
	parser := pysrc.NewParser()
	tree, err := parser.Parse(ctx, source)
	if err != nil {
		return "", report, err
	}

	memo := oracle.NewMemo(orc, log)
	if err := memo.Open(ctx, filePath, source); err != nil {
		// A dead oracle degrades to "no type known"; function and
		// qualified lookups still work.
		log.Warn("type oracle unavailable for pass", map[string]interface{}{
			"error": err.Error(),
		})
	}

	res := resolver.New(cat, inherit, memo, e.markers, log)
	edits, diags, err := res.Resolve(ctx, tree, moduleName, filePath)
	if err != nil {
		return "", report, err
	}
	report.Diagnostics = diags
	report.Edits = edits.Len()
	report.OracleQueries = memo.Queries
	report.OracleHits = memo.Hits

	if edits.Len() == 0 {
		log.Debug("no deprecated call sites", nil)
		return string(source), report, nil
	}

	migrated, err := edits.Apply(source)
	if err != nil {
		return "", report, err
	}

	if reparsed, err := parser.Parse(ctx, migrated); err != nil || reparsed.HasParseErrors() {
		report.Invalid = true
		log.Error("migrated source no longer parses, returning it anyway", map[string]interface{}{
			"edits": edits.Len(),
		})
	} else if err := memo.Update(ctx, filePath, migrated); err != nil {
		log.Warn("oracle update failed after migration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("file migrated", map[string]interface{}{
		"edits":       report.Edits,
		"diagnostics": len(report.Diagnostics),
	})
	return string(migrated), report, nil
}
