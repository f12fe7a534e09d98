package render

import (
	"golang.org/x/net/html"

	"github.com/conciergehq/concierge/types"
)

// renderResearchReport renders sectioned prose with a source list.
// Document shape: sections [{heading, body}], sources [{title, url}].
func renderResearchReport(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report research-report", lead(out))

	for _, sec := range data.Docs("sections") {
		appendAll(body,
			heading(2, sec.Str("heading", missing)),
			para("", sec.Str("body", missing)),
		)
	}

	if sources := data.Docs("sources"); len(sources) > 0 {
		appendAll(body, heading(2, "Sources"))
		ul := el("ul", "class", "sources")
		for _, src := range sources {
			appendAll(ul, appendAll(el("li"), anchor(src.Str("url", ""), src.Str("title", "source"))))
		}
		body.AppendChild(ul)
	}
	return body, nil
}

// renderQABrief renders question/answer pairs with a closing disclaimer.
// Document shape: questions [{question, answer}], disclaimer.
func renderQABrief(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report qa-brief", lead(out))

	for _, qa := range data.Docs("questions") {
		appendAll(body, div("qa-item",
			heading(2, qa.Str("question", missing)),
			para("answer", qa.Str("answer", missing)),
		))
	}

	if disclaimer := data.Str("disclaimer", ""); disclaimer != "" {
		appendAll(body, para("disclaimer", disclaimer))
	}
	return body, nil
}
