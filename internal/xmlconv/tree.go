package xmlconv

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// TreeEngine builds an element tree with encoding/xml and serializes it in
// document order. Element names become keys, repeated siblings become
// arrays, attributes become keys of their element and non-blank text is
// stored under "#text". A leaf element with no attributes becomes its text.
type TreeEngine struct{}

// XMLToJSON implements Engine.
func (TreeEngine) XMLToJSON(src string) (string, error) {
	root, err := parseTree(src)
	if err != nil {
		return "", err
	}

	doc := &object{}
	doc.add(root.name, root.value())

	compact, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding tree: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return "", fmt.Errorf("indenting tree: %w", err)
	}
	return out.String(), nil
}

type node struct {
	name     string
	attrs    []xml.Attr
	children []*node
	text     strings.Builder
}

func parseTree(src string) (*node, error) {
	dec := xml.NewDecoder(strings.NewReader(src))

	var (
		root  *node
		stack []*node
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local, attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("parsing xml: multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}

	if root == nil {
		return nil, errors.New("parsing xml: no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("parsing xml: unclosed element %q", stack[len(stack)-1].name)
	}
	return root, nil
}

func (n *node) value() any {
	text := strings.TrimSpace(n.text.String())
	if len(n.attrs) == 0 && len(n.children) == 0 {
		return text
	}

	obj := &object{}
	for _, a := range n.attrs {
		obj.add(a.Name.Local, a.Value)
	}
	for _, c := range n.children {
		obj.add(c.name, c.value())
	}
	if text != "" {
		obj.add("#text", text)
	}
	return obj
}

// object is a JSON object that keeps insertion order. Adding an existing key
// turns its value into an array at the key's original position.
type object struct {
	keys   []string
	values map[string]any
}

func (o *object) add(key string, v any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	existing, ok := o.values[key]
	if !ok {
		o.keys = append(o.keys, key)
		o.values[key] = v
		return
	}
	if list, isList := existing.(*array); isList {
		*list = append(*list, v)
		return
	}
	o.values[key] = &array{existing, v}
}

// array marks values grown from repeated siblings.
type array []any

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
