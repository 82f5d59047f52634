// Package web holds the HTML templates and static assets, compiled into the
// binary so the server runs from any working directory.
package web

import "embed"

// Files contains templates/ and static/.
//
//go:embed templates static
var Files embed.FS
