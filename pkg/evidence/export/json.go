package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/tribune/pkg/evidence"
)

// JSONExporter exports decision records as a JSON array.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Export writes records to w as a JSON array. An empty slice is written as [].
func (e *JSONExporter) Export(ctx context.Context, records []*evidence.DecisionRecord, w io.Writer) error {
	if records == nil {
		records = []*evidence.DecisionRecord{}
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return evidence.NewExportError(FormatJSON, 0, err)
	}

	if _, err := w.Write(append(data, '\n')); err != nil {
		return evidence.NewExportError(FormatJSON, 0, err)
	}
	return nil
}

// ExportStream writes records from recordsCh as a JSON array without holding
// them all in memory. It returns when the channel is closed.
func (e *JSONExporter) ExportStream(ctx context.Context, recordsCh <-chan *evidence.DecisionRecord, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return evidence.NewExportError(FormatJSON, 0, err)
	}

	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				closing := "]\n"
				if e.Pretty && recordCount > 0 {
					closing = "\n]\n"
				}
				if _, err := io.WriteString(w, closing); err != nil {
					return evidence.NewExportError(FormatJSON, recordCount, err)
				}
				return nil
			}

			sep := ","
			if recordCount == 0 {
				sep = ""
			}
			if e.Pretty {
				sep += "\n  "
			}
			if _, err := io.WriteString(w, sep); err != nil {
				return evidence.NewExportError(FormatJSON, recordCount, err)
			}

			data, err := e.serializeRecord(record)
			if err != nil {
				return evidence.NewExportError(FormatJSON, recordCount, err)
			}
			if _, err := w.Write(data); err != nil {
				return evidence.NewExportError(FormatJSON, recordCount, err)
			}
			recordCount++
		}
	}
}

func (e *JSONExporter) serializeRecord(record *evidence.DecisionRecord) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(record, "  ", "  ")
	}
	return json.Marshal(record)
}
