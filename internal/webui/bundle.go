// Package webui embeds the server-rendered checkout and operator pages.
package webui

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"time"
)

// content embeds page templates and static assets.
//
//go:embed templates/*.tmpl assets/*
var content embed.FS

// Bundle exposes parsed templates and static assets for serving.
type Bundle struct {
	Templates *template.Template // Every page and partial template.
	AssetsFS  http.FileSystem    // Stylesheet and other static files.
}

// Load parses the embedded templates.
func Load() (Bundle, error) {
	tmpl, errParse := template.New("").Funcs(FuncMap()).ParseFS(content, "templates/*.tmpl")
	if errParse != nil {
		return Bundle{}, errParse
	}
	assetsFS, errSub := fs.Sub(content, "assets")
	if errSub != nil {
		return Bundle{}, errSub
	}
	return Bundle{
		Templates: tmpl,
		AssetsFS:  http.FS(assetsFS),
	}, nil
}

// FuncMap holds the helpers available to page templates.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"isoTime": func(t time.Time) string {
			return t.UTC().Format(time.RFC3339)
		},
	}
}
