package export

import (
	"context"
	"fmt"
	"io"

	"mercator-hq/tribune/pkg/evidence"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// StreamExporter is an Exporter that can also consume a record stream.
type StreamExporter interface {
	evidence.Exporter
	ExportStream(ctx context.Context, recordsCh <-chan *evidence.DecisionRecord, w io.Writer) error
}

// New returns the exporter for format. JSON output is indented; CSV output
// carries a header row.
func New(format string) (StreamExporter, error) {
	switch format {
	case FormatJSON:
		return NewJSONExporter(true), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want json or csv)", format)
	}
}
