package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/morezero/plugin-registry/pkg/registry"
)

const pagesLogPrefix = "server:pages"

// homePageTemplate is the HTML for the plugind home page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 1100px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p class="meta">Registered plugin operations. Machine-readable: <a href="/operations">/operations</a>, <a href="/openapi.json">/openapi.json</a>.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    {{with .COMMS}}<p>COMMS: {{if eq . "ok"}}<span class="stat">OK</span>{{else}}<span class="error">Disconnected</span>{{end}}</p>{{end}}
    {{with .Database}}<p>Database: {{if eq . "ok"}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>{{end}}
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Groups</h2>
    {{if not .Groups}}
    <p>No plugin groups registered.</p>
    {{else}}
    <table>
      <thead><tr><th>Group</th><th>Version</th><th>Operations</th><th>Description</th></tr></thead>
      <tbody>
        {{range .Groups}}
        <tr><td>{{.Name}}</td><td>{{.Version}}</td><td>{{len .Operations}}</td><td>{{.Description}}</td></tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Operations</h2>
    <p>Total operations: <span class="stat">{{.Discover.Pagination.Total}}</span></p>
    <table>
      <thead><tr><th>Operation</th><th>Parameters</th><th>Returns</th><th>Description</th></tr></thead>
      <tbody>
        {{range .Discover.Operations}}
        <tr>
          <td><a href="/operation/{{.Operation}}">{{.Operation}}</a></td>
          <td>{{range $i, $p := .Parameters}}{{if $i}}, {{end}}{{$p}}{{end}}</td>
          <td>{{.Returns}}</td>
          <td>{{.Description}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
  </section>

  {{if .Aliases}}
  <section>
    <h2>Aliases</h2>
    <table>
      <thead><tr><th>Alias</th><th>Operation</th></tr></thead>
      <tbody>
        {{range $alias, $target := .Aliases}}<tr><td>{{$alias}}</td><td>{{$target}}</td></tr>{{end}}
      </tbody>
    </table>
  </section>
  {{end}}
</body>
</html>
`

// operationPageTemplate is the HTML for a single operation (describe output).
const operationPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Describe.Operation}} – plugind</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 0.5rem; }
    section { margin-bottom: 2rem; }
    pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; font-size: 0.85rem; margin: 0.25rem 0; border: 1px solid #eee; }
    .back { margin-bottom: 1rem; }
  </style>
</head>
<body>
  <p class="back"><a href="/">← Back to operations</a></p>
  <h1>{{.Describe.Operation}}</h1>
  {{if .Describe.Description}}<p class="meta">{{.Describe.Description}}</p>{{end}}
  <p class="meta">Group {{.Describe.Group}} version {{.Describe.Version}}. Returns <strong>{{.Describe.Returns}}</strong>.</p>

  <section>
    <h2>Parameters</h2>
    {{if not .Describe.Parameters}}
    <p>No parameters.</p>
    {{else}}
    <table>
      <thead><tr><th>Name</th><th>Type</th><th>Required</th><th>Default</th><th>Description</th></tr></thead>
      <tbody>
        {{range .Describe.Parameters}}
        <tr>
          <td>{{.Name}}</td>
          <td>{{.Type}}</td>
          <td>{{if .Required}}yes{{else}}no{{end}}</td>
          <td>{{if .Default}}{{json .Default}}{{end}}</td>
          <td>{{.Description}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Schemas</h2>
    <p><strong>Input:</strong></p><pre>{{json .Describe.InputSchema}}</pre>
    <p><strong>Output:</strong></p><pre>{{json .Describe.OutputSchema}}</pre>
  </section>

  <section>
    <h2>Invoke</h2>
    <pre>curl -X POST -H 'Content-Type: application/json' -d '{}' {{.InvokeURL}}</pre>
  </section>
</body>
</html>
`

var pageFuncs = template.FuncMap{
	"json": func(v interface{}) string {
		if v == nil {
			return ""
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	},
}

// homeData is the data passed to the home page template.
type homeData struct {
	Title  string
	Health *registry.HealthOutput
	// COMMS and Database are "ok", "failed" or empty when not in use.
	COMMS    string
	Database string
	Groups   []registry.GroupInfo
	Discover *registry.DiscoverOutput
	Aliases  map[string]string
}

// handleHome returns an HTTP handler for the home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		reg := s.disp.Registry()
		data := homeData{
			Title:    s.title(),
			Health:   s.health(ctx),
			Groups:   reg.Groups(),
			Discover: reg.Discover(&registry.DiscoverInput{Limit: reg.Len()}),
		}
		data.COMMS = checkLabel(data.Health.Checks.COMMS)
		data.Database = checkLabel(data.Health.Checks.Database)
		if s.manifest != nil {
			data.Aliases = s.manifest.Aliases()
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", pagesLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

func checkLabel(ok *bool) string {
	switch {
	case ok == nil:
		return ""
	case *ok:
		return "ok"
	default:
		return "failed"
	}
}

// operationPageData is the data passed to the operation page template.
type operationPageData struct {
	Describe  *registry.DescribeOutput
	InvokeURL string
}

// handleOperationPage returns an HTTP handler for the HTML view of one operation.
func (s *Server) handleOperationPage() http.HandlerFunc {
	tmpl := template.Must(template.New("operation").Funcs(pageFuncs).Parse(operationPageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if s.manifest != nil {
			name = s.manifest.ResolveAlias(name)
		}
		describe, err := s.disp.Registry().Describe(name)
		if err != nil {
			if registry.KindOf(err) == registry.KindOperationNotFound {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		data := operationPageData{
			Describe:  describe,
			InvokeURL: scheme + "://" + r.Host + "/operations/" + describe.Operation,
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - operation template execute: %v", pagesLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
