// Package web holds the static graph viewer served by traceview-d.
package web

import (
	"embed"
	"io/fs"
)

//go:embed dist/*
var content embed.FS

// Viewer returns the viewer assets rooted at dist.
func Viewer() (fs.FS, error) {
	return fs.Sub(content, "dist")
}
