package transform

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"gopkg.in/yaml.v3"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/processor/format"
)

const (
	// ProjectionRoot is the document element of every projection.
	ProjectionRoot = "table"
	// DefaultRowElement names projection rows when the stylesheet does not.
	DefaultRowElement = "row"
)

// Column maps one output column to an XPath evaluated against a row element.
type Column struct {
	Name   string `yaml:"name"`
	Select string `yaml:"select"`

	expr *xpath.Expr
}

// Stylesheet is a compiled row/column mapping. The zero-rule stylesheet
// (compiled from empty text) is the identity transform.
type Stylesheet struct {
	Table   string   `yaml:"table"`
	Rows    string   `yaml:"rows"`
	Columns []Column `yaml:"columns"`

	rowsExpr *xpath.Expr
	identity bool
}

// Identity is the stylesheet used when none is configured.
func Identity() *Stylesheet {
	return &Stylesheet{identity: true}
}

// Compile parses and validates stylesheet text. Empty text and the
// canonical XSLT identity transform yield Identity; any other XSLT is
// rejected. Failures wrap errors.ErrTransformFailed and keep the parser's
// message.
func Compile(text string) (*Stylesheet, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Identity(), nil
	}
	if strings.HasPrefix(trimmed, "<") {
		if isIdentityXSLT(trimmed) {
			return Identity(), nil
		}
		return nil, failed(fmt.Errorf("XSLT stylesheets other than the identity transform are not supported, supply a YAML row/column mapping"))
	}

	var s Stylesheet
	dec := yaml.NewDecoder(strings.NewReader(text))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, failed(fmt.Errorf("parse stylesheet: %w", err))
	}

	if s.Table == "" {
		s.Table = DefaultRowElement
	}
	s.Table = format.EncodeName(s.Table)

	if s.Rows == "" {
		if len(s.Columns) > 0 {
			return nil, failed(fmt.Errorf("columns require a rows selector"))
		}
		s.identity = true
		return &s, nil
	}

	var err error
	if s.rowsExpr, err = xpath.Compile(s.Rows); err != nil {
		return nil, failed(fmt.Errorf("rows %q: %w", s.Rows, err))
	}

	seen := make(map[string]bool, len(s.Columns))
	for i := range s.Columns {
		c := &s.Columns[i]
		if c.Name == "" {
			return nil, failed(fmt.Errorf("column %d has no name", i+1))
		}
		if seen[c.Name] {
			return nil, failed(fmt.Errorf("duplicate column %q", c.Name))
		}
		seen[c.Name] = true
		if c.Select == "" {
			c.Select = c.Name
		}
		if c.expr, err = xpath.Compile(c.Select); err != nil {
			return nil, failed(fmt.Errorf("column %q select %q: %w", c.Name, c.Select, err))
		}
	}
	return &s, nil
}

// IsIdentity reports whether Apply returns its input unchanged.
func (s *Stylesheet) IsIdentity() bool {
	return s == nil || s.identity
}

// Apply runs the stylesheet over doc and returns the projection
// <table><row><col>value</col>...</row>...</table>. The identity stylesheet
// returns doc itself.
func (s *Stylesheet) Apply(doc *xmlquery.Node) (*xmlquery.Node, error) {
	if s.IsIdentity() {
		return doc, nil
	}

	rows, err := s.selectRows(doc)
	if err != nil {
		return nil, err
	}

	out := &xmlquery.Node{Type: xmlquery.DocumentNode}
	root := element(ProjectionRoot)
	xmlquery.AddChild(out, root)

	for _, row := range rows {
		r := element(s.Table)
		xmlquery.AddChild(root, r)

		if len(s.Columns) == 0 {
			copyLeaves(r, row)
			continue
		}
		for _, c := range s.Columns {
			cell := element(format.EncodeName(c.Name))
			if v := evaluate(c.expr, row); v != "" {
				xmlquery.AddChild(cell, &xmlquery.Node{Type: xmlquery.TextNode, Data: v})
			}
			xmlquery.AddChild(r, cell)
		}
	}
	return out, nil
}

func (s *Stylesheet) selectRows(doc *xmlquery.Node) ([]*xmlquery.Node, error) {
	res := s.rowsExpr.Evaluate(xmlquery.CreateXPathNavigator(doc))
	it, ok := res.(*xpath.NodeIterator)
	if !ok {
		return nil, failed(fmt.Errorf("rows %q must select elements, got %T", s.Rows, res))
	}

	var rows []*xmlquery.Node
	for it.MoveNext() {
		nav, ok := it.Current().(*xmlquery.NodeNavigator)
		if !ok || nav.NodeType() != xpath.ElementNode {
			return nil, failed(fmt.Errorf("rows %q selected a non-element node", s.Rows))
		}
		rows = append(rows, nav.Current())
	}
	return rows, nil
}

// evaluate returns the string value of expr relative to row: the first node
// of a node-set, or the formatted scalar.
func evaluate(expr *xpath.Expr, row *xmlquery.Node) string {
	switch v := expr.Evaluate(xmlquery.CreateXPathNavigator(row)).(type) {
	case *xpath.NodeIterator:
		if v.MoveNext() {
			return v.Current().Value()
		}
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// copyLeaves projects the attributes and leaf children of src into dst.
func copyLeaves(dst, src *xmlquery.Node) {
	for _, a := range src.Attr {
		if isNamespaceAttr(a) {
			continue
		}
		cell := element(a.Name.Local)
		if a.Value != "" {
			xmlquery.AddChild(cell, &xmlquery.Node{Type: xmlquery.TextNode, Data: a.Value})
		}
		xmlquery.AddChild(dst, cell)
	}
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode || hasElementChild(c) {
			continue
		}
		cell := element(c.Data)
		if v := c.InnerText(); v != "" {
			xmlquery.AddChild(cell, &xmlquery.Node{Type: xmlquery.TextNode, Data: v})
		}
		xmlquery.AddChild(dst, cell)
	}
}

func element(name string) *xmlquery.Node {
	return &xmlquery.Node{Type: xmlquery.ElementNode, Data: name}
}

func failed(err error) error {
	return errors.Detail(errors.ErrTransformFailed, err)
}
