package cms

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/cms-analytics-server/internal/domain"
	"github.com/cms-analytics-server/internal/normalize"
)

// ParseCSV decodes a CMS CSV file into raw records keyed by the original
// column headers. Short rows are padded so a ragged trailing column does
// not drop the whole row; the normalizer decides what is actually usable.
func ParseCSV(r io.Reader, source domain.SourceSchema) ([]normalize.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // column drift across releases

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty CSV input")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var records []normalize.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(records)+2, err)
		}

		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				fields[col] = row[i]
			}
		}
		records = append(records, normalize.RawRecord{Source: source, Fields: fields})
	}

	return records, nil
}
