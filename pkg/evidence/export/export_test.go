package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/tribune/pkg/evidence"
)

func sampleRecords() []*evidence.DecisionRecord {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*evidence.DecisionRecord{
		{
			ID: "d1", RequestID: "req-1", EvaluatedAt: at, RecordedAt: at.Add(time.Millisecond),
			Source: "api", BundleVersion: "v3", Requester: "alice",
			SubjectKind: evidence.SubjectPolicy, Subject: "Algorithms",
			Outcome: "non_compliant", Compliant: false,
			Policies: []evidence.PolicyDecision{{
				PolicyID: "p1", Policy: "Algorithms", Outcome: "non_compliant",
				Violations: []evidence.ViolationRecord{{RuleID: "r1", Severity: "high", Details: "DSA, \"deprecated\""}},
			}},
			ContextHash: "abc",
		},
		{
			ID: "d2", EvaluatedAt: at.Add(time.Minute), RecordedAt: at.Add(time.Minute),
			Source: "cli", BundleVersion: "v3", Requester: "legacy-bot",
			SubjectKind: evidence.SubjectAll,
			Outcome:     "partially_compliant", Compliant: true,
			Policies: []evidence.PolicyDecision{
				{PolicyID: "p1", Policy: "Algorithms", Outcome: "compliant_with_exemption", ExemptionID: "ex-1"},
				{PolicyID: "p2", Policy: "Key Size", Outcome: "compliant"},
			},
			Skipped:     []string{"Retired"},
			ContextHash: "def",
		},
	}
}

func TestJSONExporter_Export(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		var buf bytes.Buffer
		if err := NewJSONExporter(pretty).Export(context.Background(), sampleRecords(), &buf); err != nil {
			t.Fatalf("Export(pretty=%v) error = %v", pretty, err)
		}

		var got []evidence.DecisionRecord
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not a JSON array: %v\n%s", err, buf.String())
		}
		if len(got) != 2 || got[0].ID != "d1" || got[1].Policies[0].ExemptionID != "ex-1" {
			t.Errorf("decoded = %+v", got)
		}
	}
}

func TestJSONExporter_ExportEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(false).Export(context.Background(), nil, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("Export(nil) = %q, want []", buf.String())
	}
}

func stream(records []*evidence.DecisionRecord) <-chan *evidence.DecisionRecord {
	ch := make(chan *evidence.DecisionRecord, len(records))
	for _, r := range records {
		ch <- r
	}
	close(ch)
	return ch
}

func TestJSONExporter_ExportStream(t *testing.T) {
	tests := []struct {
		name    string
		pretty  bool
		records []*evidence.DecisionRecord
		want    int
	}{
		{name: "compact", records: sampleRecords(), want: 2},
		{name: "pretty", pretty: true, records: sampleRecords(), want: 2},
		{name: "empty", records: nil, want: 0},
		{name: "empty pretty", pretty: true, records: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewJSONExporter(tt.pretty).ExportStream(context.Background(), stream(tt.records), &buf); err != nil {
				t.Fatalf("ExportStream() error = %v", err)
			}
			var got []evidence.DecisionRecord
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("output is not a JSON array: %v\n%s", err, buf.String())
			}
			if len(got) != tt.want {
				t.Errorf("decoded %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestCSVExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), sampleRecords(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "id" || len(rows[0]) != len(csvHeader) {
		t.Errorf("header = %v", rows[0])
	}

	col := func(name string) int {
		for i, h := range csvHeader {
			if h == name {
				return i
			}
		}
		t.Fatalf("no column %q", name)
		return -1
	}

	if got := rows[1][col("violations")]; got != "Algorithms/r1:high" {
		t.Errorf("violations = %q", got)
	}
	if got := rows[1][col("evaluated_at")]; got != "2026-03-01T12:00:00Z" {
		t.Errorf("evaluated_at = %q", got)
	}
	if got := rows[2][col("policies")]; got != "Algorithms=compliant_with_exemption;Key Size=compliant" {
		t.Errorf("policies = %q", got)
	}
	if got := rows[2][col("exemptions")]; got != "ex-1" {
		t.Errorf("exemptions = %q", got)
	}
	if got := rows[2][col("compliant")]; got != "true" {
		t.Errorf("compliant = %q", got)
	}
}

func TestCSVExporter_ExportStreamWithoutHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(false).ExportStream(context.Background(), stream(sampleRecords()), &buf); err != nil {
		t.Fatalf("ExportStream() error = %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "d1" {
		t.Errorf("rows = %v", rows)
	}
}

func TestExportStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	never := make(chan *evidence.DecisionRecord)
	for _, exp := range []StreamExporter{NewJSONExporter(false), NewCSVExporter(true)} {
		err := exp.ExportStream(ctx, never, &bytes.Buffer{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("%T.ExportStream() error = %v, want context.Canceled", exp, err)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestExport_WriteError(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatCSV} {
		exp, err := New(format)
		if err != nil {
			t.Fatalf("New(%q) error = %v", format, err)
		}
		err = exp.Export(context.Background(), sampleRecords(), failingWriter{})
		var ee *evidence.ExportError
		if !errors.As(err, &ee) {
			t.Fatalf("Export(%s) error = %v, want *evidence.ExportError", format, err)
		}
		if ee.Format != format {
			t.Errorf("ExportError.Format = %q, want %q", ee.Format, format)
		}
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, err := New("xml"); err == nil {
		t.Error("New(xml) error = nil, want error")
	}
}
