package result

import (
	"fmt"
	"strings"
)

// GroupSpec names a display group and its members, separated by spaces.
type GroupSpec struct {
	Name    string
	Members string
}

// Groups partitions results into named, ordered display groups.
type Groups struct {
	names   []string
	members map[string][]Result
}

// NewGroups resolves every member of specs against results. Resolution is
// all-or-nothing: an unknown or ambiguous member name fails the whole set.
func NewGroups(specs []GroupSpec, results []Result) (*Groups, error) {
	g := &Groups{members: make(map[string][]Result, len(specs))}
	for _, spec := range specs {
		if _, ok := g.members[spec.Name]; ok {
			return nil, fmt.Errorf("group %s: %w", spec.Name, ErrDuplicate)
		}
		var members []Result
		for _, name := range strings.Fields(spec.Members) {
			r, err := lookupUnique(name, results)
			if err != nil {
				return nil, fmt.Errorf("group %s: %w", spec.Name, err)
			}
			members = append(members, r)
		}
		g.names = append(g.names, spec.Name)
		g.members[spec.Name] = members
	}
	return g, nil
}

// Names returns the group names in configuration order.
func (g *Groups) Names() []string {
	return append([]string(nil), g.names...)
}

// Get returns the members of a group in configuration order.
func (g *Groups) Get(name string) ([]Result, error) {
	members, ok := g.members[name]
	if !ok {
		return nil, fmt.Errorf("group %w: %q", ErrNotFound, name)
	}
	return append([]Result(nil), members...), nil
}
