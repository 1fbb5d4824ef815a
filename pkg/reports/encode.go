package reports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Sheet1"

// numericColumns are stored as numbers in xlsx output. Every other column is
// text, even when its value parses as a number.
var numericColumns = map[string]bool{
	"message_count": true,
	"size":          true,
	"x":             true,
	"y":             true,
}

// encode writes rows as CSV or XLSX (with headers) or the records as a JSON array.
func encode(format ReportFormat, headers []string, rows [][]string, records interface{}) (io.Reader, error) {
	buf := &bytes.Buffer{}
	switch format {
	case ReportFormatJSON:
		if err := json.NewEncoder(buf).Encode(records); err != nil {
			return nil, fmt.Errorf("failed to encode json: %w", err)
		}
		return buf, nil
	case ReportFormatCSV, "":
		writer := csv.NewWriter(buf)
		if err := writer.Write(headers); err != nil {
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
		if err := writer.WriteAll(rows); err != nil {
			return nil, fmt.Errorf("failed to write rows: %w", err)
		}
		return buf, nil
	case ReportFormatXLSX:
		return encodeXLSX(headers, rows)
	default:
		return nil, fmt.Errorf("unknown report format: %s", format)
	}
}

// encodeXLSX writes a single sheet.
func encodeXLSX(headers []string, rows [][]string) (io.Reader, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(xlsxSheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
			if j < len(headers) && numericColumns[headers[j]] {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					cells[j] = n
				}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &cells); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	if err := f.SetPanes(xlsxSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode xlsx: %w", err)
	}
	return buf, nil
}
