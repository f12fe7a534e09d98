package render

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/conciergehq/concierge/types"
)

// renderListicle renders a ranked recommendation list.
// Document shape: items [{rank, name, detail, note, url}].
func renderListicle(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report listicle", lead(out))

	ol := el("ol", "class", "ranked")
	for i, item := range data.Docs("items") {
		li := appendAll(el("li"),
			span("item-name", item.Str("name", fmt.Sprintf("item %d", i+1))),
			span("item-detail", item.Str("detail", "")),
		)
		if note := item.Str("note", ""); note != "" {
			li.AppendChild(para("item-note", note))
		}
		if url := item.Str("url", ""); url != "" {
			li.AppendChild(anchor(url, "link"))
		}
		ol.AppendChild(li)
	}
	body.AppendChild(ol)
	return body, nil
}

// renderTimeline renders chronological events, oldest first.
// Document shape: events [{date, heading, body}].
func renderTimeline(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report timeline", lead(out))

	for _, ev := range data.Docs("events") {
		appendAll(body, div("timeline-event",
			span("event-date", ev.Str("date", missing)),
			heading(2, ev.Str("heading", missing)),
			para("", ev.Str("body", "")),
		))
	}
	return body, nil
}

// renderComparisonTable renders criteria rows against product columns.
// Document shape: columns [string], rows [{criterion, values [string]}],
// verdict.
func renderComparisonTable(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report comparison", lead(out))

	columns := data.Strs("columns")
	table := el("table", "class", "comparison-table")
	head := el("tr")
	head.AppendChild(tableCell("th", ""))
	for _, col := range columns {
		head.AppendChild(tableCell("th", col))
	}
	table.AppendChild(appendAll(el("thead"), head))

	tbody := el("tbody")
	for _, row := range data.Docs("rows") {
		tr := el("tr")
		tr.AppendChild(tableCell("th", row.Str("criterion", missing)))
		values := row.Strs("values")
		for i := range columns {
			val := missing
			if i < len(values) {
				val = values[i]
			}
			tr.AppendChild(tableCell("td", val))
		}
		tbody.AppendChild(tr)
	}
	table.AppendChild(tbody)
	body.AppendChild(table)

	if verdict := data.Str("verdict", ""); verdict != "" {
		appendAll(body, heading(2, "Verdict"), para("verdict", verdict))
	}
	return body, nil
}
