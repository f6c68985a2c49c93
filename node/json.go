package node

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrInvalidJSON = errors.New("invalid JSON document")

// ParseJSON builds a tree from a JSON document, keeping key order and the
// exact text of numbers.
func ParseJSON(data []byte) (*Node, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

func fromResult(r gjson.Result) *Node {
	switch r.Type {
	case gjson.JSON:
		if r.IsArray() {
			seq := NewSequence()
			r.ForEach(func(_, value gjson.Result) bool {
				seq.Items = append(seq.Items, fromResult(value))
				return true
			})
			return seq
		}
		m := NewMapping()
		r.ForEach(func(key, value gjson.Result) bool {
			m.Pairs = append(m.Pairs, Pair{Key: key.String(), Value: fromResult(value)})
			return true
		})
		return m
	case gjson.String:
		return NewString(r.Str)
	case gjson.Number:
		return NewNumber(strings.TrimSpace(r.Raw))
	case gjson.True:
		return NewBool(true)
	case gjson.False:
		return NewBool(false)
	default:
		return NewNull()
	}
}

// EncodeJSON writes n as JSON. An empty indent produces the compact form
// with no whitespace between tokens.
func EncodeJSON(n *Node, indent string) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, n, indent, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, n *Node, indent string, depth int) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}

	switch n.Kind {
	case KindMapping:
		if len(n.Pairs) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteByte('{')
		for i, p := range n.Pairs {
			if i > 0 {
				buf.WriteByte(',')
			}
			newline(buf, indent, depth+1)
			if err := writeJSONString(buf, p.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if indent != "" {
				buf.WriteByte(' ')
			}
			if err := writeJSON(buf, p.Value, indent, depth+1); err != nil {
				return err
			}
		}
		newline(buf, indent, depth)
		buf.WriteByte('}')
	case KindSequence:
		if len(n.Items) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			newline(buf, indent, depth+1)
			if err := writeJSON(buf, item, indent, depth+1); err != nil {
				return err
			}
		}
		newline(buf, indent, depth)
		buf.WriteByte(']')
	case KindScalar:
		switch n.Type {
		case String:
			return writeJSONString(buf, n.Text)
		case Number, Bool:
			buf.WriteString(n.Text)
		default:
			buf.WriteString("null")
		}
	}
	return nil
}

func newline(buf *bytes.Buffer, indent string, depth int) {
	if indent == "" {
		return
	}
	buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		buf.WriteString(indent)
	}
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
