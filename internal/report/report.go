package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/url"
	texttemplate "text/template"
	"time"

	"github.com/tania-lang/trublog-writer/internal/storage"
)

// Summary aggregates stored harvest snapshots.
type Summary struct {
	Snapshots       int
	Domains         int
	TotalPages      int
	SitemapsVisited int
	PagesByDomain   map[string]int
	PagesByHost     map[string]int
	StopReasons     map[string]int
	CrawlTime       time.Duration
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

// GenerateSummary folds snapshots into a Summary. Page counts are taken per
// snapshot, so a domain harvested twice counts its pages twice.
func GenerateSummary(snaps []*storage.Snapshot) Summary {
	s := Summary{
		PagesByDomain: make(map[string]int),
		PagesByHost:   make(map[string]int),
		StopReasons:   make(map[string]int),
	}

	if len(snaps) == 0 {
		return s
	}

	s.StartTime = snaps[0].CreatedAt
	s.EndTime = snaps[0].CreatedAt

	for _, snap := range snaps {
		s.Snapshots++
		s.TotalPages += len(snap.Pages)
		s.SitemapsVisited += snap.SitemapsVisited
		s.CrawlTime += snap.Duration
		s.PagesByDomain[snap.Domain] += len(snap.Pages)
		if snap.StopReason != "" {
			s.StopReasons[snap.StopReason]++
		}
		for _, p := range snap.Pages {
			if u, err := url.Parse(p.URL); err == nil && u.Host != "" {
				s.PagesByHost[u.Hostname()]++
			}
		}

		if snap.CreatedAt.Before(s.StartTime) {
			s.StartTime = snap.CreatedAt
		}
		if snap.CreatedAt.After(s.EndTime) {
			s.EndTime = snap.CreatedAt
		}
	}

	s.Domains = len(s.PagesByDomain)
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Sitemap Harvest Summary
-----------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Span:          {{.Duration}}
Snapshots:     {{.Snapshots}} ({{.Domains}} domains)
Pages:         {{.TotalPages}}
Sitemaps:      {{.SitemapsVisited}} fetched
Crawl Time:    {{.CrawlTime}}

Pages by Domain:
{{- range $domain, $count := .PagesByDomain}}
  {{$domain}}: {{$count}}
{{- else}}
  None
{{- end}}

Pages by Host:
{{- range $host, $count := .PagesByHost}}
  {{$host}}: {{$count}}
{{- else}}
  None
{{- end}}

Stop Reasons:
{{- range $reason, $count := .StopReasons}}
  {{$reason}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := texttemplate.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Sitemap Harvest Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Sitemap Harvest Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Snapshots</div>
    <div class="stat-val">{{.Snapshots}}</div>
  </div>
  <div class="stat-card">
    <div>Domains</div>
    <div class="stat-val">{{.Domains}}</div>
  </div>
  <div class="stat-card">
    <div>Pages</div>
    <div class="stat-val" style="color: {{if gt .TotalPages 0}}green{{else}}red{{end}};">{{.TotalPages}}</div>
  </div>
  <div class="stat-card">
    <div>Sitemaps Fetched</div>
    <div class="stat-val">{{.SitemapsVisited}}</div>
  </div>

  <h3>Pages by Domain</h3>
  <table>
    <tr><th>Domain</th><th>Pages</th></tr>
    {{- range $domain, $count := .PagesByDomain}}
    <tr><td>{{$domain}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Pages by Host</h3>
  <table>
    <tr><th>Host</th><th>Pages</th></tr>
    {{- range $host, $count := .PagesByHost}}
    <tr><td>{{$host}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Stop Reasons</h3>
  <table>
    <tr><th>Reason</th><th>Crawls</th></tr>
    {{- range $reason, $count := .StopReasons}}
    <tr><td>{{$reason}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}

	return nil
}
