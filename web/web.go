// Package web embeds the server-rendered HTML templates.
package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateFS returns the embedded templates directory.
func TemplateFS() fs.FS {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(err) // embed パスは固定なので到達しない
	}
	return sub
}

// Templates parses every *.html file of fsys. Templates are named by file name
// (login.html, search.html, token.html). A nil fsys selects the embedded set.
func Templates(fsys fs.FS) (*template.Template, error) {
	if fsys == nil {
		fsys = TemplateFS()
	}
	return template.ParseFS(fsys, "*.html")
}
