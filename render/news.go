package render

import (
	"golang.org/x/net/html"

	"github.com/conciergehq/concierge/types"
)

// renderNewsDigest renders a dated story list.
// Document shape: stories [{headline, outlet, date, url, gist}].
func renderNewsDigest(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report news-digest", lead(out))

	for _, story := range data.Docs("stories") {
		item := div("story",
			heading(2, story.Str("headline", missing)),
			div("story-meta",
				span("outlet", story.Str("outlet", missing)),
				span("date", story.Str("date", "")),
			),
			para("gist", story.Str("gist", "")),
		)
		if url := story.Str("url", ""); url != "" {
			appendAll(item, para("story-link", ""), anchor(url, "read more"))
		}
		body.AppendChild(item)
	}
	return body, nil
}

// renderDigestCards renders heading/body cards, each optionally linked.
// Document shape: cards [{heading, body, url}].
func renderDigestCards(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report digest-cards", lead(out))

	grid := div("card-grid")
	for _, card := range data.Docs("cards") {
		c := div("card",
			heading(2, card.Str("heading", missing)),
			para("", card.Str("body", missing)),
		)
		if url := card.Str("url", ""); url != "" {
			c.AppendChild(anchor(url, "more"))
		}
		grid.AppendChild(c)
	}
	body.AppendChild(grid)
	return body, nil
}
