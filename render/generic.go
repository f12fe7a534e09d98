package render

import (
	"fmt"
	"sort"

	"golang.org/x/net/html"

	"github.com/conciergehq/concierge/types"
)

// lead renders the document summary as the opening paragraph, or nil.
func lead(out *types.CrewOutput) *html.Node {
	if out.Summary == "" {
		return nil
	}
	return para("lead", out.Summary)
}

// renderGeneric renders any document as nested definition lists. It is
// the fallback for unknown renderer keys and failed renderers, so it
// must succeed on every input.
func renderGeneric(out *types.CrewOutput) (*html.Node, error) {
	body := section("report generic-report", lead(out))
	body.AppendChild(renderValue(out.Data))
	return body, nil
}

// renderValue recursively renders an arbitrary JSON value.
func renderValue(v any) *html.Node {
	switch val := v.(type) {
	case map[string]any:
		dl := el("dl")
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "title" || k == "summary" {
				continue // already in the page header and lead
			}
			appendAll(dl, appendAll(el("dt"), text(k)), appendAll(el("dd"), renderValue(val[k])))
		}
		return dl
	case []any:
		ul := el("ul")
		for _, item := range val {
			appendAll(ul, appendAll(el("li"), renderValue(item)))
		}
		return ul
	case string:
		return text(val)
	case nil:
		return span("muted", missing)
	default:
		return text(fmt.Sprintf("%v", val))
	}
}
