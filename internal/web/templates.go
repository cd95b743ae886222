package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type templates struct {
	index  *template.Template
	login  *template.Template
	trades *template.Template
}

func parseTemplates() *templates {
	return &templates{
		index:  template.Must(template.ParseFS(templateFS, "templates/index.html")),
		login:  template.Must(template.ParseFS(templateFS, "templates/login.html")),
		trades: template.Must(template.ParseFS(templateFS, "templates/trades.html")),
	}
}
