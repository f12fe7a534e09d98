package render

import (
	"golang.org/x/net/html"

	"github.com/conciergehq/concierge/types"
)

// renderItinerary renders day-by-day plans with timed items.
// Document shape: days [{label, items [{time, activity, note}]}],
// tips [string].
func renderItinerary(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report itinerary", lead(out))

	for _, day := range data.Docs("days") {
		dayNode := div("day", heading(2, day.Str("label", missing)))
		ul := el("ul", "class", "day-items")
		for _, item := range day.Docs("items") {
			li := appendAll(el("li"),
				span("time", item.Str("time", "")),
				span("activity", item.Str("activity", missing)),
			)
			if note := item.Str("note", ""); note != "" {
				li.AppendChild(span("note", note))
			}
			ul.AppendChild(li)
		}
		dayNode.AppendChild(ul)
		body.AppendChild(dayNode)
	}

	if tips := data.Strs("tips"); len(tips) > 0 {
		appendAll(body, heading(2, "Tips"))
		ul := el("ul", "class", "tips")
		for _, tip := range tips {
			appendAll(ul, appendAll(el("li"), text(tip)))
		}
		body.AppendChild(ul)
	}
	return body, nil
}

// renderEventsBoard renders upcoming events grouped on one board.
// Document shape: events [{name, date, venue, price, url, category}].
func renderEventsBoard(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report events-board", lead(out))

	board := div("board")
	for _, ev := range data.Docs("events") {
		card := div("event",
			heading(2, ev.Str("name", missing)),
			span("date", ev.Str("date", missing)),
			span("venue", ev.Str("venue", "")),
			span("price", ev.Str("price", "")),
			span("category", ev.Str("category", "")),
		)
		if url := ev.Str("url", ""); url != "" {
			card.AppendChild(anchor(url, "tickets"))
		}
		board.AppendChild(card)
	}
	body.AppendChild(board)
	return body, nil
}

// renderWeatherPanel renders a daily forecast strip.
// Document shape: location, days [{date, condition, high, low,
// precipitation, wind}].
func renderWeatherPanel(out *types.CrewOutput) (*html.Node, error) {
	data := Doc(out.Data)
	body := section("report weather-panel", lead(out))

	if loc := data.Str("location", ""); loc != "" {
		body.AppendChild(para("location", loc))
	}

	strip := div("forecast-strip")
	for _, day := range data.Docs("days") {
		strip.AppendChild(div("forecast-day",
			span("date", day.Str("date", missing)),
			span("condition", day.Str("condition", missing)),
			span("temps", day.Str("high", missing)+" / "+day.Str("low", missing)),
			span("precip", day.Str("precipitation", "")),
			span("wind", day.Str("wind", "")),
		))
	}
	body.AppendChild(strip)
	return body, nil
}
