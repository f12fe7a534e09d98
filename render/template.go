package render

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/conciergehq/concierge/types"
)

const pageShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 0; background: #f5f6f8; color: #1d2129; }
main { max-width: 860px; margin: 2rem auto; padding: 2rem; background: #fff; border-radius: 8px; box-shadow: 0 1px 4px rgba(0,0,0,.08); }
h1 { margin-top: 0; font-size: 1.6rem; }
h2 { font-size: 1.2rem; margin-top: 1.6rem; }
p.lead { font-size: 1.05rem; color: #444; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
th, td { border: 1px solid #e2e4e8; padding: .5rem .7rem; text-align: left; }
tr.up td { color: #176b37; }
tr.down td { color: #a12622; }
.card-grid, .board, .stat-grid, .forecast-strip { display: grid; grid-template-columns: repeat(auto-fill, minmax(240px, 1fr)); gap: 1rem; }
.card, .event, .stat, .forecast-day, .recipe, .stage { border: 1px solid #e2e4e8; border-radius: 6px; padding: 1rem; }
.stat-value { display: block; font-size: 1.4rem; font-weight: 600; }
span { margin-right: .5rem; }
span.date, span.outlet, span.muted, .stat-label { color: #667; font-size: .9rem; }
p.disclaimer, p.item-note { color: #667; font-size: .9rem; font-style: italic; }
footer { max-width: 860px; margin: 1rem auto 2rem; color: #889; font-size: .85rem; padding: 0 2rem; }
a { color: #1a5dab; }
</style>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
{{.Body}}
</main>
<footer>Generated {{.GeneratedAt}} by {{.Crew}}</footer>
</body>
</html>
`

// TemplateManager wraps rendered body fragments in the page shell and
// writes the result under the output directory, one subdirectory per
// crew.
type TemplateManager struct {
	tmpl      *template.Template
	outputDir string
}

// NewTemplateManager parses the page shell. outputDir may be relative.
func NewTemplateManager(outputDir string) (*TemplateManager, error) {
	tmpl, err := template.New("page").Parse(pageShell)
	if err != nil {
		return nil, fmt.Errorf("parse page shell: %w", err)
	}
	return &TemplateManager{tmpl: tmpl, outputDir: outputDir}, nil
}

// Page assembles the full HTML document for a report body.
func (m *TemplateManager) Page(title, crewKey, bodyHTML string, generatedAt time.Time) (string, error) {
	var b strings.Builder
	err := m.tmpl.Execute(&b, struct {
		Title       string
		Crew        string
		Body        template.HTML
		GeneratedAt string
	}{
		Title: title,
		Crew:  crewKey,
		// the body was built as a DOM tree with all text serialized
		// through html.Render, so it is already escaped
		Body:        template.HTML(bodyHTML),
		GeneratedAt: generatedAt.Format("2006-01-02 15:04 MST"),
	})
	if err != nil {
		return "", fmt.Errorf("execute page shell: %w", err)
	}
	return b.String(), nil
}

// Write stores the page as output/<crew>/<slug>-<timestamp>.html and
// returns the path.
func (m *TemplateManager) Write(report *types.Report) (string, error) {
	dir := filepath.Join(m.outputDir, report.CrewKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.html", slugify(report.Title), report.GeneratedAt.Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(report.HTML), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// slugify reduces a title to a safe, short file name stem.
func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
		if b.Len() >= 48 {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "report"
	}
	return slug
}
