package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tania-lang/trublog-writer/internal/pipeline"
	"github.com/tania-lang/trublog-writer/internal/storage"
)

func checkPageFormat(format string) error {
	switch format {
	case "text", "json", "csv":
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or csv)", format)
	}
}

// writePages prints pages one URL per line (text), as a JSON array, or as
// CSV with url, slug and domain columns.
func writePages(w io.Writer, format string, pages []storage.PageRecord) error {
	switch format {
	case "json":
		if pages == nil {
			pages = []storage.PageRecord{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(pages)
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"url", "slug", "domain"}); err != nil {
			return err
		}
		for _, p := range pages {
			if err := cw.Write([]string{p.URL, p.Slug, p.Domain}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case "text":
		for _, p := range pages {
			if _, err := fmt.Fprintln(w, p.URL); err != nil {
				return err
			}
		}
		return nil
	default:
		return checkPageFormat(format)
	}
}

// targetOutput is one entry of the multi-target JSON output.
type targetOutput struct {
	Target     string               `json:"target"`
	Domain     string               `json:"domain,omitempty"`
	StopReason string               `json:"stop_reason,omitempty"`
	Pages      []storage.PageRecord `json:"pages"`
	Error      string               `json:"error,omitempty"`
}

func targetName(t pipeline.Target) string {
	if t.Domain != "" {
		return t.Domain
	}
	return t.Company
}

// writeResults prints the pages of every harvested target. A single target
// is printed exactly as writePages does. With several, text output gets a
// "# domain" header per target, JSON becomes one object per target and CSV
// keeps one table since every row carries its domain.
func writeResults(w io.Writer, format string, results []pipeline.Result) error {
	if len(results) == 1 {
		var pages []storage.PageRecord
		if results[0].Snapshot != nil {
			pages = results[0].Snapshot.Pages
		}
		return writePages(w, format, pages)
	}

	switch format {
	case "json":
		out := make([]targetOutput, 0, len(results))
		for _, r := range results {
			o := targetOutput{Target: targetName(r.Target), Pages: []storage.PageRecord{}}
			if r.Err != nil {
				o.Error = r.Err.Error()
			}
			if r.Snapshot != nil {
				o.Domain = r.Snapshot.Domain
				o.StopReason = r.Snapshot.StopReason
				if r.Snapshot.Pages != nil {
					o.Pages = r.Snapshot.Pages
				}
			}
			out = append(out, o)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "csv":
		var pages []storage.PageRecord
		for _, r := range results {
			if r.Snapshot != nil {
				pages = append(pages, r.Snapshot.Pages...)
			}
		}
		return writePages(w, format, pages)
	case "text":
		first := true
		for _, r := range results {
			if r.Snapshot == nil {
				continue
			}
			if !first {
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
			}
			first = false
			if _, err := fmt.Fprintf(w, "# %s (%d pages)\n", r.Snapshot.Domain, len(r.Snapshot.Pages)); err != nil {
				return err
			}
			if err := writePages(w, format, r.Snapshot.Pages); err != nil {
				return err
			}
		}
		return nil
	default:
		return checkPageFormat(format)
	}
}
