package reports

import (
	"fmt"
)

// NewReportGenerator creates a report generator based on the report type.
func NewReportGenerator(reportType ReportType, src SnapshotSource) (Generator, error) {
	switch reportType {
	case ReportTypeLinks:
		return NewLinkReport(src), nil
	case ReportTypeNodes:
		return NewNodeReport(src), nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}
