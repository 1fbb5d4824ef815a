package reports

import (
	"context"
	"io"

	"github.com/rmax-ai/traceview/pkg/graph"
)

type ReportType string

const (
	ReportTypeLinks ReportType = "links"
	ReportTypeNodes ReportType = "nodes"
)

type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatJSON ReportFormat = "json"
	ReportFormatXLSX ReportFormat = "xlsx"
)

// Valid reports whether f is a supported output format.
func (f ReportFormat) Valid() bool {
	switch f {
	case ReportFormatCSV, ReportFormatJSON, ReportFormatXLSX:
		return true
	}
	return false
}

// ReportParams selects the output format and optional filters:
// "kind" (nodes: activity|passive) and "min_count" (links: int).
type ReportParams struct {
	Format  ReportFormat
	Filters map[string]interface{}
}

// SnapshotSource provides the graph a report is generated from.
// *engine.Session implements it.
type SnapshotSource interface {
	Snapshot() (*graph.Snapshot, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}

// ContentType returns the MIME type for a report format.
func ContentType(f ReportFormat) string {
	switch f {
	case ReportFormatJSON:
		return "application/json"
	case ReportFormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}
