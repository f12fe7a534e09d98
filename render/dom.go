package render

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// el builds an element node. Attrs alternate key, value.
func el(tag string, attrs ...string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// text builds a text node. html.Render escapes it on serialization.
func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// append adds children to a parent and returns the parent.
func appendAll(parent *html.Node, children ...*html.Node) *html.Node {
	for _, c := range children {
		if c != nil {
			parent.AppendChild(c)
		}
	}
	return parent
}

// div, section, and friends cut down on el noise in renderers.
func div(class string, children ...*html.Node) *html.Node {
	return appendAll(el("div", "class", class), children...)
}

func section(class string, children ...*html.Node) *html.Node {
	return appendAll(el("section", "class", class), children...)
}

func heading(level int, s string) *html.Node {
	return appendAll(el(fmt.Sprintf("h%d", level)), text(s))
}

func para(class, s string) *html.Node {
	p := el("p")
	if class != "" {
		p.Attr = append(p.Attr, html.Attribute{Key: "class", Val: class})
	}
	return appendAll(p, text(s))
}

func span(class, s string) *html.Node {
	return appendAll(el("span", "class", class), text(s))
}

func anchor(href, label string) *html.Node {
	if label == "" {
		label = href
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		// never emit javascript: or relative junk from model output
		return span("dead-link", label)
	}
	return appendAll(el("a", "href", href, "rel", "noopener", "target", "_blank"), text(label))
}

func tableCell(tag, s string) *html.Node {
	return appendAll(el(tag), text(s))
}

// serialize renders a fragment to its HTML string.
func serialize(n *html.Node) (string, error) {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return "", err
	}
	return b.String(), nil
}
