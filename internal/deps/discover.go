package deps

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// pyproject is the slice of pyproject.toml this tool reads: explicit
// package directories when declared, nothing else.
type pyproject struct {
	Tool struct {
		Setuptools struct {
			PackageDir map[string]string `toml:"package-dir"`
		} `toml:"setuptools"`
		Poetry struct {
			Packages []struct {
				Include string `toml:"include"`
				From    string `toml:"from"`
			} `toml:"packages"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// discoverRoots finds package roots under a project: pyproject.toml
// declarations first, then the src/ convention, then the project root
// itself as a flat layout.
func discoverRoots(projectRoot string) []string {
	var roots []string

	path := filepath.Join(projectRoot, "pyproject.toml")
	if data, err := os.ReadFile(path); err == nil {
		var pp pyproject
		if err := toml.Unmarshal(data, &pp); err == nil {
			roots = append(roots, declaredRoots(pp)...)
		}
	}

	if len(roots) == 0 {
		if info, err := os.Stat(filepath.Join(projectRoot, "src")); err == nil && info.IsDir() {
			roots = append(roots, "src")
		}
	}

	// Flat layout fallback; also lets absolute imports of top-level
	// scripts resolve.
	roots = append(roots, ".")
	return roots
}

func declaredRoots(pp pyproject) []string {
	var roots []string
	seen := make(map[string]struct{})
	add := func(dir string) {
		if dir == "" {
			dir = "."
		}
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		roots = append(roots, dir)
	}

	for _, dir := range pp.Tool.Setuptools.PackageDir {
		add(dir)
	}
	for _, pkg := range pp.Tool.Poetry.Packages {
		add(pkg.From)
	}
	return roots
}
