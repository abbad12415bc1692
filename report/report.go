// ABOUTME: Renders a run as one self-contained HTML page: header, grouped timeline, and paper.
// ABOUTME: Paper markdown is converted with goldmark; raw HTML in the input never reaches the page.

package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389-research/watchtower/runstate"
)

// Data is everything the report renders. Items should come from
// runstate.GroupTimeline over Run.Timeline so the report collapses rows the
// same way the live view does; one item per event is also valid.
type Data struct {
	Run         *runstate.RunState
	Items       []runstate.DisplayItem
	Paper       string
	GeneratedAt time.Time
}

// WriteHTML renders the report page to w. The page embeds its own styles,
// so the output file is shareable as a single artifact.
func WriteHTML(w io.Writer, d Data) error {
	if d.Run == nil {
		return fmt.Errorf("report: run state must not be nil")
	}
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now().UTC()
	}
	if err := reportTemplate.Execute(w, d); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"markdown": markdownToHTML,
	"describe": runstate.Describe,
	"clock":    clock,
	"percent":  percent,
}).Parse(reportPage))

// markdownToHTML converts a markdown string to HTML using goldmark.
// Raw HTML in the input is stripped to prevent XSS.
func markdownToHTML(input string) template.HTML {
	var buf bytes.Buffer
	md := goldmark.New()
	if err := md.Convert([]byte(input), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(input))
	}
	return template.HTML(buf.String())
}

// clock formats an event's server timestamp as a wall-clock label.
func clock(e runstate.TimelineEvent) string {
	ts := e.Meta().Timestamp
	if ts.IsZero() {
		return ""
	}
	return ts.Format("15:04:05")
}

// percent renders an optional 0..1 progress fraction as "NN%". Out-of-range
// values are clamped rather than rejected: the page is a viewer, not a
// validator.
func percent(p *float64) string {
	if p == nil {
		return ""
	}
	v := *p
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return fmt.Sprintf("%d%%", int(v*100+0.5))
}

const reportPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>run {{ .Run.RunID }}</title>
<style>
body { max-width: 52rem; margin: 2rem auto; padding: 0 1.25rem; font: 15px/1.55 "Segoe UI", system-ui, sans-serif; color: #1b1f24; }
h1 { font-size: 1.35rem; margin: 0 0 0.25rem; }
h2 { font-size: 1.05rem; margin: 2rem 0 0.75rem; border-bottom: 1px solid #e3e6ea; padding-bottom: 0.25rem; }
.meta { margin: 0; color: #57606a; }
.meta .sep { margin: 0 0.4rem; color: #c4cad1; }
.status { padding: 0.05rem 0.5rem; border-radius: 0.75rem; font-size: 0.85rem; background: #eceff2; }
.status.running { background: #ddf4ff; color: #0969da; }
.status.completed { background: #dafbe1; color: #116329; }
.status.failed { background: #ffebe9; color: #cf222e; }
.status.cancelled { background: #fff8c5; color: #7d4e00; }
.generated { color: #8b949e; font-size: 0.85rem; }
ol.timeline { list-style: none; margin: 0; padding: 0; }
ol.timeline > li { padding: 0.3rem 0.25rem; border-bottom: 1px solid #f0f2f4; }
.clock { font-family: ui-monospace, monospace; font-size: 0.85rem; color: #8b949e; margin-right: 0.6rem; }
.stage { color: #57606a; font-size: 0.85rem; margin-right: 0.6rem; }
.count { color: #0969da; font-size: 0.85rem; margin-left: 0.4rem; }
details > ol { list-style: none; margin: 0.25rem 0 0; padding-left: 1.5rem; }
details > ol > li { padding: 0.15rem 0; color: #57606a; }
summary { cursor: pointer; }
section.paper { border: 1px solid #e3e6ea; border-radius: 0.5rem; padding: 0.5rem 1.25rem 1rem; margin-top: 2rem; }
.empty { color: #8b949e; }
footer { margin: 2.5rem 0 1rem; color: #8b949e; font-size: 0.8rem; }
</style>
</head>
<body>
<header>
<h1>Run {{ .Run.RunID }}</h1>
<p class="meta">
<span class="status {{ .Run.Status }}">{{ .Run.Status }}</span>
{{- with .Run.CurrentStage }}<span class="sep">/</span><span>{{ . }}</span>{{ end }}
{{- with .Run.CurrentFocus }}<span class="sep">/</span><span>{{ . }}</span>{{ end }}
{{- with percent .Run.Progress }}<span class="sep">/</span><span>{{ . }}</span>{{ end }}
</p>
<p class="generated">generated {{ .GeneratedAt.Format "2006-01-02 15:04:05 MST" }}</p>
</header>

<section>
<h2>Timeline</h2>
{{ if .Items }}
<ol class="timeline">
{{ range .Items }}
<li>
{{- if .Grouped }}
<details>
<summary><span class="clock">{{ clock .Latest }}</span>{{ with .Latest.Meta.Stage }}<span class="stage">{{ . }}</span>{{ end }}{{ describe .Latest }}<span class="count">x{{ .Count }}</span></summary>
<ol>
{{- range .Events }}
<li><span class="clock">{{ clock . }}</span>{{ describe . }}</li>
{{- end }}
</ol>
</details>
{{- else }}
<span class="clock">{{ clock .Latest }}</span>{{ with .Latest.Meta.Stage }}<span class="stage">{{ . }}</span>{{ end }}{{ describe .Latest }}
{{- end }}
</li>
{{ end }}
</ol>
{{ else }}
<p class="empty">No timeline events recorded.</p>
{{ end }}
</section>

{{ if .Paper }}
<section class="paper">
<h2>Paper</h2>
{{ markdown .Paper }}
</section>
{{ end }}

<footer>watchtower run report</footer>
</body>
</html>
`
