package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/tribune/pkg/cli"
	"mercator-hq/tribune/pkg/config"
	"mercator-hq/tribune/pkg/evidence"
	"mercator-hq/tribune/pkg/evidence/export"
	"mercator-hq/tribune/pkg/evidence/query"
	"mercator-hq/tribune/pkg/evidence/recorder"
	"mercator-hq/tribune/pkg/evidence/retention"
	"mercator-hq/tribune/pkg/evidence/storage"
)

// decisionFilter holds the query flags shared by list and export.
type decisionFilter struct {
	requester string
	subject   string
	kind      string
	outcome   string
	policyID  string
	exempted  bool
	since     string
	until     string
	limit     int
}

var decisionsFlags struct {
	filter decisionFilter
	format string
	output string
}

var pruneFlags struct {
	days       int
	maxRecords int64
	archive    string
	format     string
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Query, export and prune the decision log",
	Long: `Read the decision log written by "tribune serve" when evidence.enabled is
set. The commands open the database configured under evidence.sqlite; the
server does not need to be running.`,
}

var decisionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded decisions, newest first",
	Long: `List recorded decisions matching the filters, newest first.

Examples:
  # Last 20 non-compliant decisions
  tribune decisions list --outcome non_compliant --limit 20

  # Decisions of one requester since a point in time
  tribune decisions list --requester legacy-bot --since 2026-03-01T00:00:00Z

  # Decisions where an exemption applied
  tribune decisions list --exempted --format json`,
	RunE: listDecisions,
}

var decisionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded decisions as JSON or CSV",
	Long: `Export every decision matching the filters, oldest first. Records are
streamed, so large exports do not need to fit in memory.

Examples:
  # Export March as CSV
  tribune decisions export --format csv --since 2026-03-01T00:00:00Z --until 2026-03-31T23:59:59Z --output march.csv

  # Export one policy's decisions as JSON to stdout
  tribune decisions export --policy-id 6f1c...`,
	RunE: exportDecisions,
}

var decisionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy now",
	Long: `Delete decisions outside the retention limits configured under
evidence.retention. Flags override the configured limits for this run.

Examples:
  # Prune with the configured limits
  tribune decisions prune

  # Keep 30 days, archiving what is removed
  tribune decisions prune --days 30 --archive data/archives`,
	RunE: pruneDecisions,
}

func init() {
	rootCmd.AddCommand(decisionsCmd)
	decisionsCmd.AddCommand(decisionsListCmd, decisionsExportCmd, decisionsPruneCmd)

	for _, c := range []*cobra.Command{decisionsListCmd, decisionsExportCmd} {
		f := &decisionsFlags.filter
		c.Flags().StringVar(&f.requester, "requester", "", "only decisions of this requester")
		c.Flags().StringVar(&f.subject, "subject", "", "only decisions about this policy or set name")
		c.Flags().StringVar(&f.kind, "kind", "", "subject kind: policy, policy_set, all")
		c.Flags().StringVar(&f.outcome, "outcome", "", "only this outcome")
		c.Flags().StringVar(&f.policyID, "policy-id", "", "only decisions that evaluated this policy id")
		c.Flags().BoolVar(&f.exempted, "exempted", false, "only decisions where an exemption applied")
		c.Flags().StringVar(&f.since, "since", "", "evaluated at or after (RFC 3339)")
		c.Flags().StringVar(&f.until, "until", "", "evaluated at or before (RFC 3339)")
	}
	decisionsListCmd.Flags().IntVar(&decisionsFlags.filter.limit, "limit", query.DefaultLimit, "maximum number of decisions")
	decisionsListCmd.Flags().StringVar(&decisionsFlags.format, "format", "text", "output format: text, json, yaml")
	decisionsExportCmd.Flags().StringVar(&decisionsFlags.format, "format", export.FormatJSON, "export format: json, csv")
	decisionsExportCmd.Flags().StringVarP(&decisionsFlags.output, "output", "o", "", "output file (default stdout)")

	decisionsPruneCmd.Flags().IntVar(&pruneFlags.days, "days", 0, "keep this many days (overrides evidence.retention.days)")
	decisionsPruneCmd.Flags().Int64Var(&pruneFlags.maxRecords, "max-records", 0, "keep at most this many records")
	decisionsPruneCmd.Flags().StringVar(&pruneFlags.archive, "archive", "", "archive pruned records to this directory")
	decisionsPruneCmd.Flags().StringVar(&pruneFlags.format, "format", "text", "output format: text, json, yaml")
}

// openDecisionLog opens the decision log storage selected by cfg.
func openDecisionLog(cfg *config.Config) (evidence.Storage, error) {
	store, err := storage.New(storage.Config{
		Backend: cfg.Evidence.Backend,
		SQLite: storage.SQLiteConfig{
			Path:        cfg.Evidence.SQLite.Path,
			Driver:      cfg.Evidence.SQLite.Driver,
			BusyTimeout: cfg.Evidence.SQLite.BusyTimeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open decision log: %w", err)
	}
	return store, nil
}

// openPersistentDecisionLog is openDecisionLog for commands that read what
// a server wrote.
func openPersistentDecisionLog(cfg *config.Config) (evidence.Storage, error) {
	if cfg.Evidence.Backend == storage.BackendMemory {
		return nil, cli.NewConfigError("evidence.backend", "the memory decision log is not readable outside the server")
	}
	store, err := openDecisionLog(cfg)
	if err != nil {
		return nil, cli.NewCommandError("decisions", err)
	}
	return store, nil
}

func recorderConfig(cfg config.EvidenceConfig) recorder.Config {
	return recorder.Config{
		AsyncBuffer:  cfg.AsyncBuffer,
		WriteTimeout: cfg.WriteTimeout,
		RedactFields: cfg.RedactFields,
	}
}

func retentionConfig(cfg config.RetentionConfig) retention.Config {
	return retention.Config{
		Days:        cfg.Days,
		MaxRecords:  cfg.MaxRecords,
		Schedule:    cfg.Schedule,
		ArchivePath: cfg.ArchivePath,
	}
}

func (f decisionFilter) query() (*evidence.Query, error) {
	q := &evidence.Query{
		Requester:   f.requester,
		SubjectKind: f.kind,
		Subject:     f.subject,
		Outcome:     f.outcome,
		PolicyID:    f.policyID,
		Exempted:    f.exempted,
		Limit:       f.limit,
	}
	for _, t := range []struct {
		flag  string
		value string
		dst   **time.Time
	}{
		{"--since", f.since, &q.StartTime},
		{"--until", f.until, &q.EndTime},
	} {
		if t.value == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, t.value)
		if err != nil {
			return nil, cli.NewConfigError(t.flag, fmt.Sprintf("invalid time %q (want RFC 3339)", t.value))
		}
		*t.dst = &parsed
	}
	if err := query.Validate(q); err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return q, nil
}

// DecisionList is the result of the decisions list command.
type DecisionList struct {
	Total     int64                      `json:"total" yaml:"total"`
	Decisions []*evidence.DecisionRecord `json:"decisions" yaml:"decisions"`
}

// RenderText prints one line per decision.
func (l *DecisionList) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EVALUATED\tREQUESTER\tSUBJECT\tOUTCOME\tVIOLATIONS\tREQUEST")
	for _, d := range l.Decisions {
		subject := d.SubjectKind
		if d.Subject != "" {
			subject = d.SubjectKind + ":" + d.Subject
		}
		requester := d.Requester
		if requester == "" {
			requester = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			d.EvaluatedAt.Format(time.RFC3339), requester, subject, d.Outcome, d.ViolationCount(), d.RequestID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d of %d decisions\n", len(l.Decisions), l.Total)
	return err
}

func listDecisions(cmd *cobra.Command, args []string) error {
	q, err := decisionsFlags.filter.query()
	if err != nil {
		return err
	}
	query.ApplyDefaults(q)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openPersistentDecisionLog(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmdContext(cmd)
	total, err := store.Count(ctx, q)
	if err != nil {
		return cli.NewCommandError("decisions list", err)
	}
	records, err := store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("decisions list", err)
	}
	return printResult(decisionsFlags.format, &DecisionList{Total: total, Decisions: records})
}

func exportDecisions(cmd *cobra.Command, args []string) (err error) {
	exporter, err := export.New(decisionsFlags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}
	filter := decisionsFlags.filter
	filter.limit = 0
	q, err := filter.query()
	if err != nil {
		return err
	}
	q.SortOrder = "asc"

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openPersistentDecisionLog(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	w := stdout
	if decisionsFlags.output != "" {
		f, err := os.Create(decisionsFlags.output)
		if err != nil {
			return cli.NewCommandError("decisions export", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cli.NewCommandError("decisions export", cerr)
			}
		}()
		w = f
	}

	ctx := cmdContext(cmd)
	recordsCh, errCh, err := store.QueryStream(ctx, q)
	if err != nil {
		return cli.NewCommandError("decisions export", err)
	}
	if err := exporter.ExportStream(ctx, recordsCh, w); err != nil {
		return cli.NewCommandError("decisions export", err)
	}
	if err := <-errCh; err != nil {
		return cli.NewCommandError("decisions export", err)
	}
	return nil
}

// PruneReport is the result of the decisions prune command.
type PruneReport struct {
	Deleted    int64  `json:"deleted" yaml:"deleted"`
	Remaining  int64  `json:"remaining" yaml:"remaining"`
	Days       int    `json:"days" yaml:"days"`
	MaxRecords int64  `json:"max_records,omitempty" yaml:"max_records,omitempty"`
	Archive    string `json:"archive,omitempty" yaml:"archive,omitempty"`
}

// RenderText prints the prune summary.
func (r *PruneReport) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "✓ Pruned %d decisions, %d remaining\n", r.Deleted, r.Remaining)
	return err
}

func pruneDecisions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rc := retentionConfig(cfg.Evidence.Retention)
	if pruneFlags.days != 0 {
		rc.Days = pruneFlags.days
	}
	if pruneFlags.maxRecords != 0 {
		rc.MaxRecords = pruneFlags.maxRecords
	}
	if pruneFlags.archive != "" {
		rc.ArchivePath = pruneFlags.archive
	}

	store, err := openPersistentDecisionLog(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmdContext(cmd)
	deleted, err := retention.NewPruner(store, rc).Prune(ctx)
	if err != nil {
		return cli.NewCommandError("decisions prune", err)
	}
	remaining, err := store.Count(ctx, &evidence.Query{})
	if err != nil {
		return cli.NewCommandError("decisions prune", err)
	}
	return printResult(pruneFlags.format, &PruneReport{
		Deleted:    deleted,
		Remaining:  remaining,
		Days:       rc.Days,
		MaxRecords: rc.MaxRecords,
		Archive:    rc.ArchivePath,
	})
}
