package http_handlers

import (
	"html/template"
	"net/http"

	"github.com/baechuer/pharmacy-auth/internal/domain"
	"github.com/baechuer/pharmacy-auth/internal/logger"
	"github.com/baechuer/pharmacy-auth/internal/transport/http/middleware"
)

// Placeholder pages stand in for the pharmacy application when no
// UPSTREAM_URL is configured, so the guard can be exercised end to end.
var placeholderTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Path}}</title></head>
<body>
<h1>{{.Path}}</h1>
{{if .Identifier}}<p>Signed in as {{.Identifier}} ({{.Role}}). <a href="{{.Dashboard}}">Dashboard</a></p>
<form method="post" action="/api/auth/logout"><button type="submit">Sign out</button></form>
{{else}}<p>Not signed in. <a href="/login">Sign in</a></p>{{end}}
</body>
</html>
`))

type placeholderData struct {
	Path       string
	Identifier string
	Role       string
	Dashboard  string
}

func Placeholder(w http.ResponseWriter, r *http.Request) {
	data := placeholderData{Path: r.URL.Path}
	if id, ok := middleware.IdentifierFromContext(r.Context()); ok {
		role, _ := middleware.RoleFromContext(r.Context())
		data.Identifier = id
		data.Role = string(role)
		data.Dashboard = domain.DashboardFor(role)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := placeholderTmpl.Execute(w, data); err != nil {
		logger.WithCtx(r.Context()).Error().Err(err).Msg("render placeholder")
	}
}
