package reports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rmax-ai/traceview/pkg/graph"
	"github.com/rmax-ai/traceview/pkg/trace"
)

type staticSource struct {
	snap *graph.Snapshot
	err  error
}

func (s staticSource) Snapshot() (*graph.Snapshot, error) { return s.snap, s.err }

func fixture() staticSource {
	return staticSource{snap: &graph.Snapshot{
		Nodes: []graph.NodeView{
			{DataID: "e1", Kind: trace.KindActivity, Label: "main", TypeLabel: "Actor", Size: 1, X: 200, Query: "#e1"},
			{DataID: "ag1", Kind: trace.KindActivity, Label: "Worker", TypeLabel: "Actor", Size: 5, Group: true, X: 600, Y: 100, Query: "#e2,#e3,#e4,#e5,#e6"},
			{DataID: "e20", Kind: trace.KindPassiveEntity, Label: "f:1:1:1", TypeLabel: "Lock", Size: 1, X: 200, Query: "#e20"},
		},
		Links: []graph.LinkView{
			{Source: "e1", Target: "ag1", MessageCount: 7},
			{Source: "ag1", Target: "e20", MessageCount: 1},
			{Source: "e1", Target: "ag1", MessageCount: 5, Creation: true},
		},
	}}
}

func readCSV(t *testing.T, gen Generator, params ReportParams) [][]string {
	t.Helper()
	r, err := gen.Generate(context.Background(), params)
	require.NoError(t, err)
	records, err := csv.NewReader(r).ReadAll()
	require.NoError(t, err)
	return records
}

func TestLinkReport_CSV(t *testing.T) {
	records := readCSV(t, NewLinkReport(fixture()), ReportParams{Format: ReportFormatCSV})

	require.Len(t, records, 4)
	assert.Equal(t, []string{"source", "target", "message_count", "creation"}, records[0])
	assert.Equal(t, []string{"e1", "ag1", "7", "false"}, records[1])
	assert.Equal(t, []string{"e1", "ag1", "5", "true"}, records[3])
}

func TestLinkReport_MinCount(t *testing.T) {
	gen := NewLinkReport(fixture())

	records := readCSV(t, gen, ReportParams{Filters: map[string]interface{}{"min_count": "5"}})
	assert.Len(t, records, 3)

	records = readCSV(t, gen, ReportParams{Filters: map[string]interface{}{"min_count": 6}})
	assert.Len(t, records, 2)

	_, err := gen.Generate(context.Background(), ReportParams{Filters: map[string]interface{}{"min_count": "x"}})
	assert.Error(t, err)
}

func TestNodeReport_JSON(t *testing.T) {
	r, err := NewNodeReport(fixture()).Generate(context.Background(), ReportParams{
		Format:  ReportFormatJSON,
		Filters: map[string]interface{}{"kind": "activity"},
	})
	require.NoError(t, err)

	var nodes []graph.NodeView
	require.NoError(t, json.NewDecoder(r).Decode(&nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "ag1", nodes[1].DataID)
	assert.Equal(t, 5, nodes[1].Size)
}

func TestNodeReport_CSV(t *testing.T) {
	records := readCSV(t, NewNodeReport(fixture()), ReportParams{
		Filters: map[string]interface{}{"kind": "passive"},
	})
	require.Len(t, records, 2)
	assert.Equal(t, []string{"e20", "passive_entity", "f:1:1:1", "Lock", "1", "false", "200", "0", "#e20"}, records[1])
}

func TestNodeReport_UnknownKind(t *testing.T) {
	_, err := NewNodeReport(fixture()).Generate(context.Background(), ReportParams{
		Filters: map[string]interface{}{"kind": "scope"},
	})
	assert.Error(t, err)
}

func TestGenerate_SourceError(t *testing.T) {
	src := staticSource{err: errors.New("assertion failed")}
	_, err := NewLinkReport(src).Generate(context.Background(), ReportParams{})
	assert.Error(t, err)
}

func TestGenerate_UnknownFormat(t *testing.T) {
	_, err := NewLinkReport(fixture()).Generate(context.Background(), ReportParams{Format: "xml"})
	assert.Error(t, err)
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		reportType ReportType
		wantErr    bool
	}{
		{ReportTypeLinks, false},
		{ReportTypeNodes, false},
		{"usage", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.reportType), func(t *testing.T) {
			gen, err := NewReportGenerator(tt.reportType, fixture())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, gen)
		})
	}
}

func TestLinkReport_XLSX(t *testing.T) {
	r, err := NewLinkReport(fixture()).Generate(context.Background(), ReportParams{Format: ReportFormatXLSX})
	require.NoError(t, err)

	f, err := excelize.OpenReader(r)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"source", "target", "message_count", "creation"}, rows[0])
	assert.Equal(t, []string{"e1", "ag1", "7", "false"}, rows[1])
	assert.Equal(t, []string{"e1", "ag1", "5", "true"}, rows[3])
}

func TestNodeReport_XLSXKeepsTextColumns(t *testing.T) {
	src := staticSource{snap: &graph.Snapshot{Nodes: []graph.NodeView{
		{DataID: "e1", Kind: trace.KindActivity, Label: "007", TypeLabel: "Actor", Size: 1, X: 200.5, Query: "#e1"},
		{DataID: "e2", Kind: trace.KindActivity, Label: "NaN", TypeLabel: "Actor", Size: 1, Query: "#e2"},
		{DataID: "e3", Kind: trace.KindActivity, Label: "Inf", TypeLabel: "1e3", Size: 12, Query: "#e3"},
	}}}
	r, err := NewNodeReport(src).Generate(context.Background(), ReportParams{Format: ReportFormatXLSX})
	require.NoError(t, err)

	f, err := excelize.OpenReader(r)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "007", rows[1][2])
	assert.Equal(t, "200.5", rows[1][6])
	assert.Equal(t, "NaN", rows[2][2])
	assert.Equal(t, "Inf", rows[3][2])
	assert.Equal(t, "1e3", rows[3][3])
	assert.Equal(t, "12", rows[3][4])
}

func TestReportFormat_Valid(t *testing.T) {
	for _, f := range []ReportFormat{ReportFormatCSV, ReportFormatJSON, ReportFormatXLSX} {
		assert.True(t, f.Valid(), f)
	}
	assert.False(t, ReportFormat("xml").Valid())
	assert.False(t, ReportFormat("").Valid())
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", ContentType(ReportFormatJSON))
	assert.Equal(t, "text/csv", ContentType(ReportFormatCSV))
	assert.Contains(t, ContentType(ReportFormatXLSX), "spreadsheetml")
}
