package transform

import (
	"github.com/antchfx/xmlquery"

	"github.com/SimioLLC/WebAPISync/table"
)

// Engine turns a normalized document into a relational fragment.
type Engine struct {
	sheet *Stylesheet
}

// NewEngine binds a compiled stylesheet. A nil stylesheet is the identity.
func NewEngine(sheet *Stylesheet) *Engine {
	if sheet == nil {
		sheet = Identity()
	}
	return &Engine{sheet: sheet}
}

// Stylesheet returns the bound stylesheet.
func (e *Engine) Stylesheet() *Stylesheet {
	return e.sheet
}

// Transform applies the stylesheet and loads the result. A nil document
// (an empty payload) yields an empty fragment.
func (e *Engine) Transform(doc *xmlquery.Node) (table.Fragment, error) {
	if doc == nil {
		return table.Fragment{}, nil
	}
	if e.sheet.IsIdentity() {
		return Load(doc)
	}
	proj, err := e.sheet.Apply(doc)
	if err != nil {
		return table.Fragment{}, err
	}
	return LoadProjection(proj)
}
