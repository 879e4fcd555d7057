package rules

import (
	"sort"
	"strings"
)

// Catalog maps fully qualified names to replacement rules. Keys are
// dotted paths rooted at a module.
type Catalog struct {
	rules map[string]*ReplacementRule
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{rules: make(map[string]*ReplacementRule)}
}

// Add inserts a rule, overwriting any existing entry for the same FQN.
func (c *Catalog) Add(rule *ReplacementRule) {
	c.rules[rule.OldFQN] = rule
}

// Get returns the rule for an FQN.
func (c *Catalog) Get(fqn string) (*ReplacementRule, bool) {
	r, ok := c.rules[fqn]
	return r, ok
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// Merge copies rules from other into c without overwriting existing
// keys. Merging a file's own catalog first and imported catalogs after
// gives local rules precedence on ties.
func (c *Catalog) Merge(other *Catalog) {
	if other == nil {
		return
	}
	for fqn, rule := range other.rules {
		if _, exists := c.rules[fqn]; !exists {
			c.rules[fqn] = rule
		}
	}
}

// HasMethodNamed reports whether any catalog key ends in ".<name>".
// The resolver uses this to avoid oracle round trips for method names
// no rule could ever match.
func (c *Catalog) HasMethodNamed(name string) bool {
	suffix := "." + name
	for fqn := range c.rules {
		if strings.HasSuffix(fqn, suffix) {
			return true
		}
	}
	return false
}

// FQNs returns all keys in sorted order.
func (c *Catalog) FQNs() []string {
	out := make([]string, 0, len(c.rules))
	for fqn := range c.rules {
		out = append(out, fqn)
	}
	sort.Strings(out)
	return out
}

// Rules returns the rules in FQN order.
func (c *Catalog) Rules() []*ReplacementRule {
	out := make([]*ReplacementRule, 0, len(c.rules))
	for _, fqn := range c.FQNs() {
		out = append(out, c.rules[fqn])
	}
	return out
}
