package crews

import "embed"

// catalogFS holds the built-in crew definitions. A crews directory on
// disk can override any of them by key.
//
//go:embed catalog/*.yaml
var catalogFS embed.FS
