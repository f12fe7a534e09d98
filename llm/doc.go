// Package llm defines the provider abstraction used by the classifier and
// the crew engine: a unified chat request/response shape with tool calls,
// a provider registry, and error mapping from upstream HTTP status codes.
package llm
