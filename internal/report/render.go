package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/duplexmedia/pagespeed/pkg/pagespeed"
)

// Output formats accepted by Render.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
	FormatProm = "prom"
)

// Report is one rendered batch: the raw result plus its summaries.
type Report struct {
	GeneratedAt time.Time              `json:"generated_at" yaml:"generated_at"`
	Summaries   []Summary              `json:"summary" yaml:"summary"`
	Results     *pagespeed.BatchResult `json:"results" yaml:"results"`
}

// New builds a Report for br. If tracker is nil, availability reflects
// this batch only.
func New(br *pagespeed.BatchResult, tracker *Tracker, now time.Time) *Report {
	var sums []Summary
	if tracker != nil {
		sums = tracker.Observe(br)
	} else {
		sums = Summarize(br)
	}
	return &Report{GeneratedAt: now.UTC(), Summaries: sums, Results: br}
}

// Render writes rep to w in the given format.
func Render(w io.Writer, format string, rep *Report) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, rep)
	case FormatYAML:
		return WriteYAML(w, rep)
	case FormatText:
		return WriteText(w, rep)
	case FormatProm:
		return WritePrometheus(w, rep.Summaries, rep.GeneratedAt)
	default:
		return fmt.Errorf("report: unsupported format %q", format)
	}
}

// WriteJSON writes the full report as indented JSON.
func WriteJSON(w io.Writer, rep *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// WriteYAML writes the full report as YAML.
func WriteYAML(w io.Writer, rep *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("report: encode yaml: %w", err)
	}
	return enc.Close()
}

// WriteText writes one aligned row per pair. Raw response data is omitted.
func WriteText(w io.Writer, rep *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tSTRATEGY\tSTATUS\tSCORE\tRATING\tAVAIL\tERROR")
	for _, s := range rep.Summaries {
		status := "ok"
		if !s.Success {
			status = "failed"
		}
		score := "-"
		if s.Score != nil {
			score = strconv.FormatFloat(*s.Score, 'f', 0, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
			s.URL, s.Strategy, status, score, s.Rating, s.AvailabilityPct, s.Error)
	}
	return tw.Flush()
}

// WriteFile renders rep into path via a temporary file and rename, so
// readers such as the textfile collector never see a partial file.
func WriteFile(path, format string, rep *Report) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("report: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := Render(tmp, format, rep); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("report: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("report: rename: %w", err)
	}
	return nil
}
