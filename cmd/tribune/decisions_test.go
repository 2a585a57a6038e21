package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/tribune/pkg/cli"
	"mercator-hq/tribune/pkg/evidence"
	"mercator-hq/tribune/pkg/evidence/storage"
)

var decisionBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// useTempDecisionLog points the decision log at a fresh SQLite file holding
// six decisions, one per hour from decisionBase. Odd ones are non-compliant
// and belong to legacy-bot; decision 4 carries an exemption.
func useTempDecisionLog(t *testing.T) string {
	t.Helper()
	useTempStore(t)
	path := filepath.Join(t.TempDir(), "decisions.db")
	t.Setenv("TRIBUNE_EVIDENCE_BACKEND", "sqlite")
	t.Setenv("TRIBUNE_EVIDENCE_SQLITE_PATH", path)
	t.Setenv("TRIBUNE_EVIDENCE_RETENTION_DAYS", "-1")

	store, err := storage.NewSQLiteStorage(storage.SQLiteConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	for i := 0; i < 6; i++ {
		rec := &evidence.DecisionRecord{
			ID:            fmt.Sprintf("d%d", i),
			RequestID:     fmt.Sprintf("req-%d", i),
			EvaluatedAt:   decisionBase.Add(time.Duration(i) * time.Hour),
			RecordedAt:    decisionBase.Add(time.Duration(i) * time.Hour),
			Source:        "api",
			BundleVersion: "v1",
			Requester:     "ci",
			SubjectKind:   evidence.SubjectPolicy,
			Subject:       "Key Size",
			Outcome:       "compliant",
			Compliant:     true,
			Policies:      []evidence.PolicyDecision{{PolicyID: "p-key", Policy: "Key Size", Outcome: "compliant"}},
			ContextHash:   "abc",
		}
		if i%2 == 1 {
			rec.Requester = "legacy-bot"
			rec.Outcome = "non_compliant"
			rec.Compliant = false
			rec.Policies[0].Outcome = "non_compliant"
			rec.Policies[0].Violations = []evidence.ViolationRecord{{RuleID: "min-bits", Severity: "high", Details: "1024 < 2048"}}
		}
		if i == 4 {
			rec.Outcome = "exempted"
			rec.Policies[0].Outcome = "exempted"
			rec.Policies[0].ExemptionID = "e-1"
		}
		if err := store.Store(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func resetDecisionFlags() {
	decisionsFlags.filter = decisionFilter{}
	decisionsFlags.format = "json"
	decisionsFlags.output = ""
	pruneFlags.days = 0
	pruneFlags.maxRecords = 0
	pruneFlags.archive = ""
	pruneFlags.format = "json"
}

func runList(t *testing.T, filter decisionFilter) *DecisionList {
	t.Helper()
	out := captureOutput(t)
	resetDecisionFlags()
	decisionsFlags.filter = filter

	if err := listDecisions(nil, []string{}); err != nil {
		t.Fatalf("listDecisions() error = %v", err)
	}
	var list DecisionList
	if err := json.Unmarshal(out.Bytes(), &list); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	return &list
}

func TestListDecisions(t *testing.T) {
	useTempDecisionLog(t)

	tests := []struct {
		name      string
		filter    decisionFilter
		wantTotal int64
		wantIDs   []string
	}{
		{"all newest first", decisionFilter{}, 6, []string{"d5", "d4", "d3", "d2", "d1", "d0"}},
		{"limit", decisionFilter{limit: 2}, 6, []string{"d5", "d4"}},
		{"requester", decisionFilter{requester: "legacy-bot"}, 3, []string{"d5", "d3", "d1"}},
		{"outcome", decisionFilter{outcome: "exempted"}, 1, []string{"d4"}},
		{"exempted", decisionFilter{exempted: true}, 1, []string{"d4"}},
		{"policy id", decisionFilter{policyID: "p-key", limit: 1}, 6, []string{"d5"}},
		{"unknown policy id", decisionFilter{policyID: "p-other"}, 0, nil},
		{
			name:      "time window",
			filter:    decisionFilter{since: "2026-03-01T13:00:00Z", until: "2026-03-01T15:00:00Z"},
			wantTotal: 3,
			wantIDs:   []string{"d3", "d2", "d1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := runList(t, tt.filter)
			if list.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", list.Total, tt.wantTotal)
			}
			var ids []string
			for _, d := range list.Decisions {
				ids = append(ids, d.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestListDecisions_Text(t *testing.T) {
	useTempDecisionLog(t)
	out := captureOutput(t)
	resetDecisionFlags()
	decisionsFlags.format = "text"
	decisionsFlags.filter.requester = "legacy-bot"

	if err := listDecisions(nil, []string{}); err != nil {
		t.Fatalf("listDecisions() error = %v", err)
	}
	text := out.String()
	for _, want := range []string{"EVALUATED", "policy:Key Size", "non_compliant", "req-5", "3 of 3 decisions"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestListDecisions_Errors(t *testing.T) {
	useTempDecisionLog(t)
	captureOutput(t)

	tests := []struct {
		name   string
		filter decisionFilter
		setup  func(t *testing.T)
	}{
		{name: "bad since", filter: decisionFilter{since: "yesterday"}},
		{name: "window reversed", filter: decisionFilter{since: "2026-03-02T00:00:00Z", until: "2026-03-01T00:00:00Z"}},
		{name: "unknown kind", filter: decisionFilter{kind: "widget"}},
		{name: "limit too large", filter: decisionFilter{limit: 1000000}},
		{
			name:  "memory backend",
			setup: func(t *testing.T) { t.Setenv("TRIBUNE_EVIDENCE_BACKEND", "memory") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup(t)
			}
			resetDecisionFlags()
			decisionsFlags.filter = tt.filter

			err := listDecisions(nil, []string{})
			if code := cli.ExitCode(err); code != cli.ExitUsage {
				t.Errorf("ExitCode() = %d, want %d (err: %v)", code, cli.ExitUsage, err)
			}
		})
	}
}

func TestExportDecisions_CSV(t *testing.T) {
	useTempDecisionLog(t)
	captureOutput(t)
	resetDecisionFlags()
	output := filepath.Join(t.TempDir(), "march.csv")
	decisionsFlags.format = "csv"
	decisionsFlags.output = output
	decisionsFlags.filter.requester = "legacy-bot"

	if err := exportDecisions(nil, []string{}); err != nil {
		t.Fatalf("exportDecisions() error = %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][0] != "id" {
		t.Errorf("header = %v", rows[0])
	}
	// Exports run oldest first.
	for i, want := range []string{"d1", "d3", "d5"} {
		if rows[i+1][0] != want {
			t.Errorf("row %d id = %s, want %s", i+1, rows[i+1][0], want)
		}
	}
}

func TestExportDecisions_JSONToStdout(t *testing.T) {
	useTempDecisionLog(t)
	out := captureOutput(t)
	resetDecisionFlags()
	decisionsFlags.format = "json"
	decisionsFlags.filter.exempted = true

	if err := exportDecisions(nil, []string{}); err != nil {
		t.Fatalf("exportDecisions() error = %v", err)
	}
	var records []evidence.DecisionRecord
	if err := json.Unmarshal(out.Bytes(), &records); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, out.String())
	}
	if len(records) != 1 || records[0].ExemptionIDs()[0] != "e-1" {
		t.Errorf("records = %+v", records)
	}
}

func TestExportDecisions_UnknownFormat(t *testing.T) {
	useTempDecisionLog(t)
	captureOutput(t)
	resetDecisionFlags()
	decisionsFlags.format = "xml"

	err := exportDecisions(nil, []string{})
	if code := cli.ExitCode(err); code != cli.ExitUsage {
		t.Errorf("ExitCode() = %d, want %d (err: %v)", code, cli.ExitUsage, err)
	}
}

func TestPruneDecisions(t *testing.T) {
	useTempDecisionLog(t)
	out := captureOutput(t)
	resetDecisionFlags()
	archive := t.TempDir()
	pruneFlags.maxRecords = 2
	pruneFlags.archive = archive

	if err := pruneDecisions(nil, []string{}); err != nil {
		t.Fatalf("pruneDecisions() error = %v", err)
	}
	var report PruneReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if report.Deleted != 4 || report.Remaining != 2 {
		t.Errorf("report = %+v, want 4 deleted and 2 remaining", report)
	}
	entries, err := os.ReadDir(archive)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("archive files = %d, want 1", len(entries))
	}

	list := runList(t, decisionFilter{})
	if list.Total != 2 || list.Decisions[0].ID != "d5" || list.Decisions[1].ID != "d4" {
		t.Errorf("after prune = %+v", list)
	}
}
