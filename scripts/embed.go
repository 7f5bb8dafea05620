// Package scripts embeds the analysis scripts shipped with sightline.
package scripts

import "embed"

// FS holds every bundled .risor script at its root.
//
//go:embed *.risor
var FS embed.FS
