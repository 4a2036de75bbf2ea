// Package console provides embedded web assets.
package console

import "embed"

// Templates and static files are compiled into the binary.

//go:embed all:web/static
var StaticFS embed.FS

//go:embed all:web/templates
var TemplateFS embed.FS
