package render

import (
	"golang.org/x/net/html"

	"github.com/conciergehq/concierge/types"
)

// renderProfileCard renders a fact sheet plus recent developments.
// Document shape: facts [{label, value}], recent [string].
func renderProfileCard(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report profile-card", lead(out))

	if facts := data.Docs("facts"); len(facts) > 0 {
		dl := el("dl", "class", "facts")
		for _, fact := range facts {
			appendAll(dl,
				appendAll(el("dt"), text(fact.Str("label", missing))),
				appendAll(el("dd"), text(fact.Str("value", missing))),
			)
		}
		body.AppendChild(dl)
	}

	if recent := data.Strs("recent"); len(recent) > 0 {
		appendAll(body, heading(2, "Recent"))
		ul := el("ul", "class", "recent")
		for _, r := range recent {
			appendAll(ul, appendAll(el("li"), text(r)))
		}
		body.AppendChild(ul)
	}
	return body, nil
}

// renderRecipeCards renders full recipes with ingredients and steps.
// Document shape: recipes [{name, time, servings, ingredients [string],
// steps [string], url}].
func renderRecipeCards(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report recipe-cards", lead(out))

	for _, recipe := range data.Docs("recipes") {
		card := div("recipe",
			heading(2, recipe.Str("name", missing)),
			div("recipe-meta",
				span("time", recipe.Str("time", "")),
				span("servings", recipe.Str("servings", "")),
			),
		)

		if ingredients := recipe.Strs("ingredients"); len(ingredients) > 0 {
			appendAll(card, heading(3, "Ingredients"))
			ul := el("ul", "class", "ingredients")
			for _, ing := range ingredients {
				appendAll(ul, appendAll(el("li"), text(ing)))
			}
			card.AppendChild(ul)
		}
		if steps := recipe.Strs("steps"); len(steps) > 0 {
			appendAll(card, heading(3, "Steps"))
			ol := el("ol", "class", "steps")
			for _, step := range steps {
				appendAll(ol, appendAll(el("li"), text(step)))
			}
			card.AppendChild(ol)
		}
		if url := recipe.Str("url", ""); url != "" {
			card.AppendChild(anchor(url, "original recipe"))
		}
		body.AppendChild(card)
	}
	return body, nil
}

// renderLearningPath renders staged resources toward a learning goal.
// Document shape: stages [{name, duration, items [{resource, kind, url,
// note}]}].
func renderLearningPath(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report learning-path", lead(out))

	for _, stage := range data.Docs("stages") {
		stageNode := div("stage",
			heading(2, stage.Str("name", missing)),
			span("duration", stage.Str("duration", "")),
		)
		ul := el("ul", "class", "stage-items")
		for _, item := range stage.Docs("items") {
			li := appendAll(el("li"),
				span("resource", item.Str("resource", missing)),
				span("kind", item.Str("kind", "")),
			)
			if note := item.Str("note", ""); note != "" {
				li.AppendChild(span("note", note))
			}
			if url := item.Str("url", ""); url != "" {
				li.AppendChild(anchor(url, "open"))
			}
			ul.AppendChild(li)
		}
		stageNode.AppendChild(ul)
		body.AppendChild(stageNode)
	}
	return body, nil
}
