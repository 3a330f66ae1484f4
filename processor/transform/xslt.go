package transform

import (
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
)

const xsltNamespace = "http://www.w3.org/1999/XSL/Transform"

// isIdentityXSLT reports whether text is the canonical XSLT identity
// transform: one template matching node()|@* that copies the node and
// applies templates to node()|@*. Such stylesheets are what older
// configurations carry as their default.
func isIdentityXSLT(text string) bool {
	doc, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return false
	}
	root := documentElement(doc)
	if !isXSL(root, "stylesheet") && !isXSL(root, "transform") {
		return false
	}

	var template *xmlquery.Node
	for _, c := range elementChildren(root) {
		switch {
		case isXSL(c, "output"), isXSL(c, "strip-space"), isXSL(c, "preserve-space"):
		case isXSL(c, "template") && template == nil:
			template = c
		default:
			return false
		}
	}
	if template == nil || !anyNodeOrAttr(template.SelectAttr("match")) {
		return false
	}

	body := elementChildren(template)
	if len(body) != 1 || !isXSL(body[0], "copy") {
		return false
	}
	apply := elementChildren(body[0])
	return len(apply) == 1 && isXSL(apply[0], "apply-templates") &&
		anyNodeOrAttr(apply[0].SelectAttr("select")) && len(elementChildren(apply[0])) == 0
}

func isXSL(n *xmlquery.Node, local string) bool {
	return n != nil && n.Type == xmlquery.ElementNode && n.Data == local && n.NamespaceURI == xsltNamespace
}

// anyNodeOrAttr matches "node()|@*" in either order, ignoring spaces.
func anyNodeOrAttr(expr string) bool {
	parts := strings.Split(strings.Join(strings.Fields(expr), ""), "|")
	sort.Strings(parts)
	return len(parts) == 2 && parts[0] == "@*" && parts[1] == "node()"
}
