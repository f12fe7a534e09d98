// Package types defines the shared data model of the concierge service:
// incoming requests, classification results, crew outputs, rendered
// reports, and the unified error taxonomy used across packages.
package types
