package output

import (
	"fmt"
	"strings"

	"github.com/hejijunhao/canopy/internal/model"
)

// Verbosity controls how much of a record is written.
type Verbosity int

const (
	// Minimal drops echoed input text and per-example id lists.
	Minimal Verbosity = iota
	// Standard drops echoed input text.
	Standard
	// Full writes every field.
	Full
)

// ParseVerbosity converts "minimal", "standard" or "full".
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(s) {
	case "minimal":
		return Minimal, nil
	case "", "standard":
		return Standard, nil
	case "full":
		return Full, nil
	}
	return Standard, fmt.Errorf("unknown verbosity %q", s)
}

// FormatRecord returns a copy of rec with fields stripped according to
// verbosity. The report is copied before stripping so the caller's value is
// left untouched.
func FormatRecord(rec Record, v Verbosity) Record {
	if v < Full {
		rec.Text = ""
	}
	if v == Minimal && rec.Report != nil {
		r := *rec.Report
		r.FalsePositiveIDs = nil
		r.FalseNegativeIDs = nil
		rec.Report = &r
	}
	return rec
}

// ReportRecord wraps a report for output.
func ReportRecord(r model.ClassificationReport) Record {
	return Record{Kind: KindReport, ID: r.ConceptID, Report: &r}
}
