package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Group is one display group: a name and its space-separated members.
type Group struct {
	Name    string
	Members string
}

// Groups keeps display groups in the order they appear in the file.
type Groups []Group

// UnmarshalYAML decodes a mapping of group name to members, keeping order.
func (g *Groups) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: groups must be a mapping", node.Line)
	}
	out := make(Groups, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var grp Group
		if err := node.Content[i].Decode(&grp.Name); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&grp.Members); err != nil {
			return fmt.Errorf("group %s: %w", grp.Name, err)
		}
		out = append(out, grp)
	}
	*g = out
	return nil
}

// MarshalYAML encodes the groups as an ordered mapping.
func (g Groups) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, grp := range g {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: grp.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: grp.Members},
		)
	}
	return node, nil
}
