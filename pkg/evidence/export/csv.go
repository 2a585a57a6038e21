package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/tribune/pkg/evidence"
)

// CSVExporter exports decision records as CSV, one row per decision.
// Per-policy results are flattened; the full structure is only available
// from the JSON exporter.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

var csvHeader = []string{
	"id", "request_id", "evaluated_at", "recorded_at",
	"source", "bundle_version", "requester",
	"subject_kind", "subject", "outcome", "compliant",
	"policies", "violations", "exemptions", "skipped", "context_hash",
}

// Export writes records to w in CSV format.
func (e *CSVExporter) Export(ctx context.Context, records []*evidence.DecisionRecord, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return evidence.NewExportError(FormatCSV, 0, err)
		}
	}
	for i, record := range records {
		if err := writer.Write(recordToRow(record)); err != nil {
			return evidence.NewExportError(FormatCSV, i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return evidence.NewExportError(FormatCSV, len(records), err)
	}
	return nil
}

// ExportStream writes records from recordsCh in CSV format, flushing every
// 100 rows. It returns when the channel is closed.
func (e *CSVExporter) ExportStream(ctx context.Context, recordsCh <-chan *evidence.DecisionRecord, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return evidence.NewExportError(FormatCSV, 0, err)
		}
	}

	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return evidence.NewExportError(FormatCSV, recordCount, err)
				}
				return nil
			}

			if err := writer.Write(recordToRow(record)); err != nil {
				return evidence.NewExportError(FormatCSV, recordCount, err)
			}
			recordCount++

			if recordCount%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return evidence.NewExportError(FormatCSV, recordCount, err)
				}
			}
		}
	}
}

// recordToRow flattens a record. Policies are "name=outcome" pairs and
// violations are "policy/rule:severity", both joined with ';'.
func recordToRow(record *evidence.DecisionRecord) []string {
	var policies, violations []string
	for _, p := range record.Policies {
		policies = append(policies, p.Policy+"="+p.Outcome)
		for _, v := range p.Violations {
			violations = append(violations, p.Policy+"/"+v.RuleID+":"+v.Severity)
		}
	}

	return []string{
		record.ID,
		record.RequestID,
		formatTime(record.EvaluatedAt),
		formatTime(record.RecordedAt),
		record.Source,
		record.BundleVersion,
		record.Requester,
		record.SubjectKind,
		record.Subject,
		record.Outcome,
		strconv.FormatBool(record.Compliant),
		strings.Join(policies, ";"),
		strings.Join(violations, ";"),
		strings.Join(record.ExemptionIDs(), ";"),
		strings.Join(record.Skipped, ";"),
		record.ContextHash,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
