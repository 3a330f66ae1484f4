// Package transform maps a normalized XML document onto table rows.
//
// A stylesheet is a small YAML document:
//
//	table: order          # name of the projected row element, default "row"
//	rows: //order         # XPath selecting one element per row
//	columns:              # optional, default is every attribute and leaf child
//	  - name: id
//	    select: "@id"     # XPath relative to the row
//	  - name: qty
//	    select: qty
//
// Empty stylesheet text is the identity transform: the document is handed
// to Load unchanged, which infers the row set from the document's shape.
// FileSource keeps a stylesheet file loaded and reloads it on change.
package transform
