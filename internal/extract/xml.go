package extract

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// lineItemKeywords mark elements whose children are flattened one level
// instead of being walked recursively.
var lineItemKeywords = []string{"item", "product", "article", "line", "articulo", "producto"}

type xmlNode struct {
	tag      string
	text     string
	attrs    []xml.Attr
	children []*xmlNode
}

func extractXML(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open xml: %w", err)
	}
	defer f.Close()

	root, err := parseXML(f)
	if err != nil {
		return Result{}, fmt.Errorf("parse xml: %w", err)
	}

	var lines []string
	linearize(root, 0, &lines)
	return Result{
		Text:       strings.Join(lines, "\n"),
		SourceType: SourceXML,
		Method:     "xml-linearize",
		Pages:      1,
	}, nil
}

// parseXML builds the element tree. An element's text is the character
// data before its first child.
func parseXML(r io.Reader) (*xmlNode, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		// latin-1 and friends are passed through; invalid bytes are dropped
		// when the text is rendered
		return input, nil
	}

	var (
		root  *xmlNode
		stack []*xmlNode
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &xmlNode{tag: t.Name.Local, attrs: elementAttrs(t.Attr)}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("multiple root elements")
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			node := stack[len(stack)-1]
			if len(node.children) == 0 {
				node.text += string(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("no root element")
	}
	return root, nil
}

// elementAttrs drops namespace declarations.
func elementAttrs(attrs []xml.Attr) []xml.Attr {
	out := make([]xml.Attr, 0, len(attrs))
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func isLineItem(tag string) bool {
	lower := strings.ToLower(tag)
	for _, k := range lineItemKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// linearize renders "tag: text" lines. Line-item elements list their own
// text, attributes and direct children without depth indentation; other
// elements recurse, indented two spaces per level.
func linearize(n *xmlNode, level int, lines *[]string) {
	if isLineItem(n.tag) {
		if text := cleanText(n.text); text != "" {
			*lines = append(*lines, n.tag+": "+text)
		}
		for _, a := range n.attrs {
			*lines = append(*lines, "  "+a.Name.Local+": "+a.Value)
		}
		for _, c := range n.children {
			if text := cleanText(c.text); text != "" {
				*lines = append(*lines, "  "+c.tag+": "+text)
			}
			for _, a := range c.attrs {
				*lines = append(*lines, "    "+a.Name.Local+": "+a.Value)
			}
		}
		return
	}

	indent := strings.Repeat("  ", level)
	if text := cleanText(n.text); text != "" {
		*lines = append(*lines, indent+n.tag+": "+text)
	}
	for _, a := range n.attrs {
		*lines = append(*lines, indent+"  "+a.Name.Local+": "+a.Value)
	}
	for _, c := range n.children {
		linearize(c, level+1, lines)
	}
}

func cleanText(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, ""))
}
