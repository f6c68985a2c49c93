package node

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrEmptyDocument = errors.New("empty YAML document")

// ParseYAML builds a tree from the first document in data. Aliases are
// expanded; scalar tags and styles are kept as presentation hints.
func ParseYAML(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || (doc.Kind == yaml.DocumentNode && len(doc.Content) == 0) {
		return nil, ErrEmptyDocument
	}
	return FromYAML(&doc)
}

func FromYAML(y *yaml.Node) (*Node, error) {
	switch y.Kind {
	case yaml.DocumentNode:
		if len(y.Content) == 0 {
			return nil, ErrEmptyDocument
		}
		return FromYAML(y.Content[0])
	case yaml.AliasNode:
		if y.Alias == nil {
			return nil, fmt.Errorf("line %d: dangling alias", y.Line)
		}
		return FromYAML(y.Alias)
	case yaml.MappingNode:
		m := NewMapping()
		for i := 0; i+1 < len(y.Content); i += 2 {
			value, err := FromYAML(y.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Pairs = append(m.Pairs, Pair{Key: y.Content[i].Value, Value: value})
		}
		return m, nil
	case yaml.SequenceNode:
		seq := NewSequence()
		for _, c := range y.Content {
			item, err := FromYAML(c)
			if err != nil {
				return nil, err
			}
			seq.Items = append(seq.Items, item)
		}
		return seq, nil
	case yaml.ScalarNode:
		n := &Node{Kind: KindScalar, Text: y.Value, Tag: y.Tag, Style: y.Style}
		switch y.ShortTag() {
		case "!!int", "!!float":
			n.Type = Number
		case "!!bool":
			n.Type = Bool
			n.Text = strings.ToLower(y.Value)
		case "!!null":
			n.Type = Null
			n.Text = "null"
		default:
			n.Type = String
		}
		return n, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", y.Line, y.Kind)
	}
}

func ToYAML(n *Node) *yaml.Node {
	if n == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}

	switch n.Kind {
	case KindMapping:
		y := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if len(n.Pairs) == 0 {
			y.Style = yaml.FlowStyle
		}
		for _, p := range n.Pairs {
			y.Content = append(y.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Key},
				ToYAML(p.Value),
			)
		}
		return y
	case KindSequence:
		y := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(n.Items) == 0 {
			y.Style = yaml.FlowStyle
		}
		for _, item := range n.Items {
			y.Content = append(y.Content, ToYAML(item))
		}
		return y
	default:
		y := &yaml.Node{Kind: yaml.ScalarNode, Value: n.Text, Style: n.Style, Tag: n.Tag}
		if y.Tag == "" || y.Tag == "!" {
			y.Tag = scalarTag(n)
		}
		if n.Type == Null && y.Value == "" {
			y.Value = "null"
		}
		return y
	}
}

func scalarTag(n *Node) string {
	switch n.Type {
	case Number:
		if _, ok := n.Int(); ok {
			return "!!int"
		}
		return "!!float"
	case Bool:
		return "!!bool"
	case Null:
		return "!!null"
	default:
		return "!!str"
	}
}

func EncodeYAML(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ToYAML(n)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
