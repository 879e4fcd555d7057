package rules

// InheritanceIndex maps class FQNs to their ordered base-class FQNs.
// Bases are qualified against the declaring module's imports at scan
// time; a name the scan could not resolve stays as written and the
// resolver may still expand it through its own alias table.
type InheritanceIndex struct {
	bases map[string][]string
}

// NewInheritanceIndex creates an empty index.
func NewInheritanceIndex() *InheritanceIndex {
	return &InheritanceIndex{bases: make(map[string][]string)}
}

// Record stores the base list for a class, replacing any previous entry.
func (ix *InheritanceIndex) Record(classFQN string, bases []string) {
	ix.bases[classFQN] = bases
}

// Bases returns the direct bases of a class.
func (ix *InheritanceIndex) Bases(classFQN string) []string {
	return ix.bases[classFQN]
}

// Len returns the number of recorded classes.
func (ix *InheritanceIndex) Len() int {
	return len(ix.bases)
}

// Merge copies entries from other without overwriting existing keys.
func (ix *InheritanceIndex) Merge(other *InheritanceIndex) {
	if other == nil {
		return
	}
	for fqn, bases := range other.bases {
		if _, exists := ix.bases[fqn]; !exists {
			ix.bases[fqn] = bases
		}
	}
}

// Ancestry walks the inheritance chain of a class breadth-first and
// calls visit for each base reached, nearest first. A visited set makes
// the walk safe on cyclic hierarchies. visit returns false to stop.
//
// resolve maps a base name as written to the key it is indexed under
// (alias expansion); it may return its input unchanged.
func (ix *InheritanceIndex) Ancestry(classFQN string, resolve func(string) string, visit func(base string) bool) {
	if resolve == nil {
		resolve = func(s string) string { return s }
	}

	visited := map[string]struct{}{classFQN: {}}
	queue := append([]string(nil), ix.bases[classFQN]...)

	for len(queue) > 0 {
		base := resolve(queue[0])
		queue = queue[1:]

		if _, seen := visited[base]; seen {
			continue
		}
		visited[base] = struct{}{}

		if !visit(base) {
			return
		}
		queue = append(queue, ix.bases[base]...)
	}
}

// ModuleScan bundles everything one scanned module contributes: its
// rules, its diagnostics, and its class hierarchy fragment. This is the
// unit the catalog cache serializes.
type ModuleScan struct {
	Module        string                `msgpack:"module"`
	Rules         []*ReplacementRule    `msgpack:"rules"`
	Unreplaceable []UnreplaceableRecord `msgpack:"unreplaceable"`
	Bases         map[string][]string   `msgpack:"bases"`
	Imports       []string              `msgpack:"imports"`
}

// Catalog builds a Catalog from the scan's rules.
func (ms *ModuleScan) Catalog() *Catalog {
	c := NewCatalog()
	for _, r := range ms.Rules {
		c.Add(r)
	}
	return c
}

// Inheritance builds an InheritanceIndex from the scan's base lists.
func (ms *ModuleScan) Inheritance() *InheritanceIndex {
	ix := NewInheritanceIndex()
	for fqn, bases := range ms.Bases {
		ix.Record(fqn, bases)
	}
	return ix
}
