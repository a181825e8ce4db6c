// Package facility holds the table of virtual facility groups ($group
// names) declared in the insservgo configuration file, and the recursive
// expansion of a group into its member service names.
package facility

import (
	"fmt"
)

const maxExpansionDepth = 10

// Member is one entry inside a facility group declaration.
type Member struct {
	// Name is the member token, without its optional '+' prefix.
	Name string
	// Optional marks a member declared with a leading '+': missing optional
	// members are silently skipped rather than treated as unresolved
	// dependencies.
	Optional bool
}

// Group is one named facility, e.g. "$local_fs" or "$remote_fs".
type Group struct {
	Name    string
	Members []Member
}

// Table holds every facility group declared by the configuration, keyed by
// name (including the leading '$').
type Table struct {
	groups map[string]*Group
	order  []string
}

// NewTable returns an empty facility table.
func NewTable() *Table {
	return &Table{groups: make(map[string]*Group)}
}

// Define records a facility group declaration. Repeated declarations of the
// same name append to the existing member list, matching the behavior of
// repeated lines in a config file or its .d drop-ins.
func (t *Table) Define(name string, members []Member) {
	g, ok := t.groups[name]
	if !ok {
		g = &Group{Name: name}
		t.groups[name] = g
		t.order = append(t.order, name)
	}
	g.Members = append(g.Members, members...)
}

// Get returns the group declaration for name, if any.
func (t *Table) Get(name string) (*Group, bool) {
	g, ok := t.groups[name]
	return g, ok
}

// Names returns every declared group name in declaration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Expand recursively resolves a facility name into the flat set of concrete
// service names it denotes. Nested facility references ($group inside
// $group) are expanded in turn, up to maxExpansionDepth levels; beyond that,
// expansion stops and an error is returned so the caller can report a
// configuration problem instead of looping forever on a cyclic declaration.
//
// "$all" is never expanded here: callers must special-case it, since its
// membership is the full set of known services rather than a fixed list.
func (t *Table) Expand(name string) ([]Member, error) {
	seen := make(map[string]bool)
	return t.expand(name, seen, 0)
}

func (t *Table) expand(name string, seen map[string]bool, depth int) ([]Member, error) {
	if depth > maxExpansionDepth {
		return nil, fmt.Errorf("facility %s: expansion depth exceeds %d, likely a cyclic group", name, maxExpansionDepth)
	}
	if seen[name] {
		return nil, fmt.Errorf("facility %s: cyclic group reference", name)
	}
	seen[name] = true

	g, ok := t.groups[name]
	if !ok {
		return nil, fmt.Errorf("facility %s: no such group", name)
	}

	var out []Member
	for _, m := range g.Members {
		if len(m.Name) > 0 && m.Name[0] == '$' && m.Name != "$all" {
			nested, err := t.expand(m.Name, seen, depth+1)
			if err != nil {
				return nil, err
			}
			for _, nm := range nested {
				out = append(out, Member{Name: nm.Name, Optional: nm.Optional || m.Optional})
			}
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
