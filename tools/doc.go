// Package tools provides the research tools crews call during task
// execution: web search, page scraping, RSS, finance quotes, geocoding,
// weather, and Wikipedia summaries. Each tool is a thin wrapper over one
// external HTTP API.
//
// Tool failures never abort a crew: the executor converts errors into a
// structured JSON error payload handed back to the agent, which can try a
// different tool or carry on without the data.
package tools
