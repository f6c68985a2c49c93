// Package node is an order-preserving document tree shared by the JSON and
// YAML cassette codecs. A Node is exactly one of Mapping, Sequence or Scalar.
package node

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Kind int

const (
	KindMapping Kind = iota
	KindSequence
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	case KindScalar:
		return "scalar"
	default:
		return "unknown"
	}
}

type ScalarType int

const (
	String ScalarType = iota
	Number
	Bool
	Null
)

type Node struct {
	Kind Kind

	// Mapping
	Pairs []Pair
	// Sequence
	Items []*Node

	// Scalar. Text is the string value for String and the literal for
	// Number, Bool and Null.
	Type ScalarType
	Text string

	// YAML presentation hints, empty for nodes built from JSON.
	Tag   string
	Style yaml.Style
}

type Pair struct {
	Key   string
	Value *Node
}

func NewMapping(pairs ...Pair) *Node {
	if pairs == nil {
		pairs = []Pair{}
	}
	return &Node{Kind: KindMapping, Pairs: pairs}
}

func NewSequence(items ...*Node) *Node {
	if items == nil {
		items = []*Node{}
	}
	return &Node{Kind: KindSequence, Items: items}
}

func NewString(s string) *Node {
	return &Node{Kind: KindScalar, Type: String, Text: s}
}

func NewInt(i int64) *Node {
	return &Node{Kind: KindScalar, Type: Number, Text: strconv.FormatInt(i, 10)}
}

func NewNumber(literal string) *Node {
	return &Node{Kind: KindScalar, Type: Number, Text: literal}
}

func NewBool(b bool) *Node {
	return &Node{Kind: KindScalar, Type: Bool, Text: strconv.FormatBool(b)}
}

func NewNull() *Node {
	return &Node{Kind: KindScalar, Type: Null, Text: "null"}
}

func (n *Node) IsMapping() bool  { return n != nil && n.Kind == KindMapping }
func (n *Node) IsSequence() bool { return n != nil && n.Kind == KindSequence }
func (n *Node) IsScalar() bool   { return n != nil && n.Kind == KindScalar }

func (n *Node) IsString() bool {
	return n.IsScalar() && n.Type == String
}

func (n *Node) IsNull() bool {
	return n.IsScalar() && n.Type == Null
}

// Int returns the value of an integral number scalar. Fractions, exponents
// and values outside int64 report false.
func (n *Node) Int() (int64, bool) {
	if !n.IsScalar() || n.Type != Number {
		return 0, false
	}
	if strings.ContainsAny(n.Text, ".eE") {
		return 0, false
	}
	i, err := strconv.ParseInt(n.Text, 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Get returns the value of the first pair named key, or nil.
func (n *Node) Get(key string) *Node {
	if !n.IsMapping() {
		return nil
	}
	for _, p := range n.Pairs {
		if p.Key == key {
			return p.Value
		}
	}
	return nil
}

// Set replaces the value of the first pair named key, appending a new pair
// when the key is absent.
func (n *Node) Set(key string, value *Node) {
	if !n.IsMapping() {
		return
	}
	for i := range n.Pairs {
		if n.Pairs[i].Key == key {
			n.Pairs[i].Value = value
			return
		}
	}
	n.Pairs = append(n.Pairs, Pair{Key: key, Value: value})
}

// Keys lists mapping keys in document order.
func (n *Node) Keys() []string {
	if !n.IsMapping() {
		return nil
	}
	keys := make([]string, len(n.Pairs))
	for i, p := range n.Pairs {
		keys[i] = p.Key
	}
	return keys
}
