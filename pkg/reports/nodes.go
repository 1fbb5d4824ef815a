package reports

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/rmax-ai/traceview/pkg/graph"
	"github.com/rmax-ai/traceview/pkg/trace"
)

// NodeReport lists the visible nodes with their size and position.
type NodeReport struct {
	src SnapshotSource
}

// NewNodeReport creates a new NodeReport generator.
func NewNodeReport(src SnapshotSource) *NodeReport {
	return &NodeReport{src: src}
}

func (r *NodeReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := r.src.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot graph: %w", err)
	}

	var kind trace.EntityRefKind
	if k, ok := params.Filters["kind"].(string); ok && k != "" {
		if kind, err = ParseKind(k); err != nil {
			return nil, err
		}
	}

	nodes := make([]graph.NodeView, 0, len(snap.Nodes))
	rows := make([][]string, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if kind != "" && n.Kind != kind {
			continue
		}
		nodes = append(nodes, n)
		rows = append(rows, []string{
			n.DataID,
			string(n.Kind),
			n.Label,
			n.TypeLabel,
			strconv.Itoa(n.Size),
			strconv.FormatBool(n.Group),
			strconv.FormatFloat(n.X, 'f', -1, 64),
			strconv.FormatFloat(n.Y, 'f', -1, 64),
			n.Query,
		})
	}

	headers := []string{"data_id", "kind", "label", "type", "size", "group", "x", "y", "query"}
	return encode(params.Format, headers, rows, nodes)
}

// ParseKind maps the short names accepted on the wire to entity kinds.
func ParseKind(s string) (trace.EntityRefKind, error) {
	switch s {
	case "activity", "activities":
		return trace.KindActivity, nil
	case "passive", "passive_entity", "entities":
		return trace.KindPassiveEntity, nil
	default:
		return "", fmt.Errorf("unknown node kind: %s", s)
	}
}
