package render

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/conciergehq/concierge/types"
)

// renderMarketReport renders a quote table plus highlight bullets.
// Document shape: quotes [{symbol, price, change, change_percent}],
// highlights [string].
func renderMarketReport(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report market-report", lead(out))

	if quotes := data.Docs("quotes"); len(quotes) > 0 {
		table := el("table", "class", "quotes")
		head := el("tr")
		for _, h := range []string{"Symbol", "Price", "Change", "Change %"} {
			head.AppendChild(tableCell("th", h))
		}
		table.AppendChild(appendAll(el("thead"), head))

		tbody := el("tbody")
		for _, q := range quotes {
			change := q.Str("change", missing)
			rowClass := "flat"
			switch {
			case strings.HasPrefix(change, "-"):
				rowClass = "down"
			case change != missing && change != "0":
				rowClass = "up"
			}
			row := el("tr", "class", rowClass)
			row.AppendChild(tableCell("td", q.Str("symbol", missing)))
			row.AppendChild(tableCell("td", q.Str("price", missing)))
			row.AppendChild(tableCell("td", change))
			row.AppendChild(tableCell("td", q.Str("change_percent", missing)))
			tbody.AppendChild(row)
		}
		table.AppendChild(tbody)
		body.AppendChild(table)
	}

	if highlights := data.Strs("highlights"); len(highlights) > 0 {
		appendAll(body, heading(2, "Highlights"))
		ul := el("ul", "class", "highlights")
		for _, h := range highlights {
			appendAll(ul, appendAll(el("li"), text(h)))
		}
		body.AppendChild(ul)
	}
	return body, nil
}

// renderStatDashboard renders labeled figures with trend markers.
// Document shape: stats [{label, value, trend}], notes [string].
func renderStatDashboard(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report stat-dashboard", lead(out))

	grid := div("stat-grid")
	for _, stat := range data.Docs("stats") {
		grid.AppendChild(div("stat",
			span("stat-value", stat.Str("value", missing)),
			span("stat-label", stat.Str("label", missing)),
			span("stat-trend", stat.Str("trend", "")),
		))
	}
	body.AppendChild(grid)

	if notes := data.Strs("notes"); len(notes) > 0 {
		ul := el("ul", "class", "notes")
		for _, n := range notes {
			appendAll(ul, appendAll(el("li"), text(n)))
		}
		body.AppendChild(ul)
	}
	return body, nil
}
