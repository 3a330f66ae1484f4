package transform

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/processor/format"
	"github.com/SimioLLC/WebAPISync/table"
)

// Load infers a single table from an arbitrary XML document.
//
// Starting at the document element it looks for the first child element
// that has structure of its own. When that child repeats, or holds only
// leaf values, it and its same-named siblings are the rows; otherwise the
// search descends into it. An element whose children are all leaves is a
// single row, unless a child name repeats, in which case each repeated
// child is a one-column row. Row columns are the row's attributes followed
// by its leaf children, in order of first appearance across all rows.
func Load(doc *xmlquery.Node) (table.Fragment, error) {
	root := documentElement(doc)
	if root == nil {
		return table.Fragment{}, loadFailed(fmt.Errorf("document has no root element"))
	}

	if !hasElementChild(root) {
		if len(dataAttrs(root)) == 0 && strings.TrimSpace(root.InnerText()) == "" {
			return table.Fragment{}, nil
		}
		return build([]*xmlquery.Node{root}, true)
	}
	return build(locateRows(root), true)
}

// LoadProjection reads a document produced by Stylesheet.Apply: every child
// of the root is a row and every child of a row is a column.
func LoadProjection(doc *xmlquery.Node) (table.Fragment, error) {
	root := documentElement(doc)
	if root == nil {
		return table.Fragment{}, loadFailed(fmt.Errorf("projection has no root element"))
	}
	rows := elementChildren(root)
	if len(rows) == 0 {
		return table.Fragment{}, nil
	}
	return build(rows, false)
}

func locateRows(e *xmlquery.Node) []*xmlquery.Node {
	kids := elementChildren(e)

	for _, c := range kids {
		if !isComplex(c) {
			continue
		}
		sibs := named(kids, c.Data)
		if len(sibs) > 1 || allLeafChildren(c) {
			return sibs
		}
		return locateRows(c)
	}

	// Only leaves below e
	counts := make(map[string]int, len(kids))
	for _, c := range kids {
		counts[c.Data]++
	}
	for _, c := range kids {
		if counts[c.Data] > 1 {
			return named(kids, c.Data)
		}
	}
	return []*xmlquery.Node{e}
}

// build collects the cells of rows. With scalar set, a row without child
// elements contributes its own text under its own name.
func build(rows []*xmlquery.Node, scalar bool) (table.Fragment, error) {
	var (
		columns []string
		index   = map[string]int{}
		cells   = make([]map[int]string, len(rows))
	)
	add := func(i int, name, value string) {
		name = format.DecodeName(name)
		col, ok := index[name]
		if !ok {
			col = len(columns)
			index[name] = col
			columns = append(columns, name)
		}
		if _, dup := cells[i][col]; !dup {
			cells[i][col] = value
		}
	}

	for i, r := range rows {
		cells[i] = map[int]string{}
		for _, a := range dataAttrs(r) {
			add(i, a.Name.Local, a.Value)
		}
		if scalar && !hasElementChild(r) {
			if text := r.InnerText(); text != "" || len(dataAttrs(r)) == 0 {
				add(i, r.Data, text)
			}
			continue
		}
		for _, c := range elementChildren(r) {
			if !hasElementChild(c) {
				add(i, c.Data, c.InnerText())
			}
		}
	}

	if len(columns) == 0 {
		return table.Fragment{}, loadFailed(fmt.Errorf("located %d row(s) without any column", len(rows)))
	}

	frag := table.Fragment{Columns: columns, Rows: make([][]string, len(rows))}
	for i := range rows {
		row := make([]string, len(columns))
		for col, v := range cells[i] {
			row[col] = v
		}
		frag.Rows[i] = row
	}
	return frag, nil
}

func documentElement(doc *xmlquery.Node) *xmlquery.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == xmlquery.ElementNode {
		return doc
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

func elementChildren(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func named(nodes []*xmlquery.Node, name string) []*xmlquery.Node {
	var out []*xmlquery.Node
	for _, n := range nodes {
		if n.Data == name {
			out = append(out, n)
		}
	}
	return out
}

func hasElementChild(n *xmlquery.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return true
		}
	}
	return false
}

func isComplex(n *xmlquery.Node) bool {
	return hasElementChild(n) || len(dataAttrs(n)) > 0
}

func allLeafChildren(n *xmlquery.Node) bool {
	for _, c := range elementChildren(n) {
		if hasElementChild(c) {
			return false
		}
	}
	return true
}

func dataAttrs(n *xmlquery.Node) []xmlquery.Attr {
	var out []xmlquery.Attr
	for _, a := range n.Attr {
		if !isNamespaceAttr(a) {
			out = append(out, a)
		}
	}
	return out
}

func isNamespaceAttr(a xmlquery.Attr) bool {
	return a.Name.Space == "xmlns" || a.Name.Local == "xmlns"
}

func loadFailed(err error) error {
	return errors.Detail(errors.ErrRelationalLoad, err)
}
