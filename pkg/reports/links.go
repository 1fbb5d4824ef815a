package reports

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/rmax-ai/traceview/pkg/graph"
)

// LinkReport lists the visible links, message links before creation links.
type LinkReport struct {
	src SnapshotSource
}

// NewLinkReport creates a new LinkReport generator.
func NewLinkReport(src SnapshotSource) *LinkReport {
	return &LinkReport{src: src}
}

func (r *LinkReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := r.src.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot graph: %w", err)
	}

	minCount := 0
	switch v := params.Filters["min_count"].(type) {
	case int:
		minCount = v
	case string:
		if v != "" {
			if minCount, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("invalid min_count %q: %w", v, err)
			}
		}
	}

	links := make([]graph.LinkView, 0, len(snap.Links))
	rows := make([][]string, 0, len(snap.Links))
	for _, l := range snap.Links {
		if l.MessageCount < minCount {
			continue
		}
		links = append(links, l)
		rows = append(rows, []string{
			l.Source,
			l.Target,
			strconv.Itoa(l.MessageCount),
			strconv.FormatBool(l.Creation),
		})
	}

	headers := []string{"source", "target", "message_count", "creation"}
	return encode(params.Format, headers, rows, links)
}
