// Package deps discovers the modules a target file depends on, scans
// them for deprecation rules, and merges the results into the catalog a
// resolver pass consumes.
package deps

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"depmig/internal/catalog"
	"depmig/internal/logging"
	"depmig/internal/pysrc"
	"depmig/internal/rules"
)

// Store is the cache surface the resolver consults before scanning a
// module. A nil Store means every module is scanned fresh.
type Store interface {
	Get(module string, source []byte) (*rules.ModuleScan, bool, error)
	Put(module string, source []byte, ms *rules.ModuleScan) error
}

// Config configures dependency traversal.
type Config struct {
	// ProjectRoot anchors module discovery.
	ProjectRoot string

	// Roots are package roots relative to ProjectRoot. Empty means
	// discover from pyproject.toml and the src/flat conventions.
	Roots []string

	// Depth bounds the import BFS: 0 scans only the target module,
	// 1 adds its direct imports, and so on.
	Depth int
}

// Result is the merged output of one traversal.
type Result struct {
	Catalog       *rules.Catalog
	Inheritance   *rules.InheritanceIndex
	Unreplaceable []rules.UnreplaceableRecord

	// Scanned lists the modules visited, traversal order.
	Scanned []string
}

// Resolver walks imports and builds the merged catalog.
type Resolver struct {
	config  Config
	roots   []string
	builder *catalog.Builder
	store   Store
	logger  *logging.Logger
}

// NewResolver creates a dependency resolver. markers configure what the
// scans treat as deprecation markers; store may be nil.
func NewResolver(config Config, markers catalog.Markers, store Store, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop()
	}
	roots := config.Roots
	if len(roots) == 0 {
		roots = discoverRoots(config.ProjectRoot)
	}
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		if !filepath.IsAbs(r) {
			r = filepath.Join(config.ProjectRoot, r)
		}
		abs = append(abs, r)
	}
	return &Resolver{
		config:  config,
		roots:   abs,
		builder: catalog.NewBuilder(markers, logger),
		store:   store,
		logger:  logger,
	}
}

// ModuleFile maps a dotted module path to its file under the known
// roots, trying plain files before packages.
func (r *Resolver) ModuleFile(module string) (string, bool) {
	rel := filepath.FromSlash(strings.ReplaceAll(module, ".", "/"))
	for _, root := range r.roots {
		for _, candidate := range []string{
			filepath.Join(root, rel+".py"),
			filepath.Join(root, rel, "__init__.py"),
		} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}
	}
	return "", false
}

// FileModule maps a file path back to its dotted module name relative
// to the first root containing it.
func (r *Resolver) FileModule(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	for _, root := range r.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		rel = strings.TrimSuffix(rel, ".py")
		rel = strings.TrimSuffix(rel, "/__init__")
		return strings.ReplaceAll(rel, "/", "."), true
	}
	return "", false
}

// Resolve scans the target module and its imports breadth-first to the
// configured depth. The target's own rules win FQN ties because merges
// never overwrite: nearest declaration first.
func (r *Resolver) Resolve(ctx context.Context, module string, source []byte) (*Result, error) {
	result := &Result{
		Catalog:     rules.NewCatalog(),
		Inheritance: rules.NewInheritanceIndex(),
	}

	type item struct {
		module string
		depth  int
	}
	visited := map[string]struct{}{module: {}}
	queue := []item{{module: module, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		src := source
		if cur.module != module {
			path, ok := r.ModuleFile(cur.module)
			if !ok {
				r.logger.Debug("imported module not found under roots", map[string]interface{}{
					"module": cur.module,
				})
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				r.logger.Warn("imported module unreadable", map[string]interface{}{
					"module": cur.module,
					"error":  err.Error(),
				})
				continue
			}
			src = data
		}

		ms, err := r.scan(ctx, cur.module, src)
		if err != nil {
			if cur.module == module {
				return nil, err
			}
			r.logger.Warn("imported module failed to scan", map[string]interface{}{
				"module": cur.module,
				"error":  err.Error(),
			})
			continue
		}

		result.Catalog.Merge(ms.Catalog())
		result.Inheritance.Merge(ms.Inheritance())
		result.Unreplaceable = append(result.Unreplaceable, ms.Unreplaceable...)
		result.Scanned = append(result.Scanned, cur.module)

		if cur.depth >= r.config.Depth {
			continue
		}
		for _, imp := range ms.Imports {
			next := pysrc.ResolveRelativeModule(imp, cur.module)
			if next == "" {
				continue
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, item{module: next, depth: cur.depth + 1})
		}
	}

	r.logger.Debug("dependency traversal complete", map[string]interface{}{
		"target":  module,
		"scanned": len(result.Scanned),
		"rules":   result.Catalog.Len(),
	})
	return result, nil
}

// scan runs the catalog builder through the cache.
func (r *Resolver) scan(ctx context.Context, module string, source []byte) (*rules.ModuleScan, error) {
	if r.store != nil {
		if ms, hit, err := r.store.Get(module, source); err == nil && hit {
			return ms, nil
		}
	}

	ms, err := r.builder.Scan(ctx, module, source)
	if err != nil {
		return nil, err
	}

	if r.store != nil {
		if err := r.store.Put(module, source, ms); err != nil {
			r.logger.Warn("cache write failed", map[string]interface{}{
				"module": module,
				"error":  err.Error(),
			})
		}
	}
	return ms, nil
}

