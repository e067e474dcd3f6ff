// Command audit-report prints recent booking submission attempts and an
// outcome summary from the audit table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/audit"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type reporter interface {
	Recent(ctx context.Context, filter audit.Filter) ([]audit.Submission, error)
	CountByOutcome(ctx context.Context, since time.Time) (map[audit.Outcome]int, error)
}

type options struct {
	since     time.Duration
	outcome   string
	sessionID string
	limit     uint64
	asJSON    bool
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, db, err := bootstrap.OpenAuditDB(ctx, cfg)
	if err != nil {
		logger.Error("failed to open audit database", "error", err)
		os.Exit(1)
	}
	if db == nil {
		logger.Error("audit-report requires DATABASE_URL")
		os.Exit(1)
	}
	defer pool.Close()
	defer db.Close()

	if err := run(ctx, audit.NewStore(db), opts, time.Now(), os.Stdout); err != nil {
		logger.Error("audit report failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("audit-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.DurationVar(&opts.since, "since", 24*time.Hour, "look back this far")
	fs.StringVar(&opts.outcome, "outcome", "", "only show this outcome (booked, invalid, rejected, slot_unavailable, rate_limited, failed)")
	fs.StringVar(&opts.sessionID, "session", "", "only show this session id")
	fs.Uint64Var(&opts.limit, "limit", 50, "maximum rows to list")
	fs.BoolVar(&opts.asJSON, "json", false, "emit JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.since <= 0 {
		err := fmt.Errorf("-since must be positive")
		fmt.Fprintln(stderr, err)
		return opts, err
	}
	return opts, nil
}

type report struct {
	Since    time.Time             `json:"since"`
	Counts   map[audit.Outcome]int `json:"counts"`
	Attempts []audit.Submission    `json:"attempts"`
}

func run(ctx context.Context, store reporter, opts options, now time.Time, out io.Writer) error {
	since := now.Add(-opts.since)
	counts, err := store.CountByOutcome(ctx, since)
	if err != nil {
		return fmt.Errorf("count outcomes: %w", err)
	}
	rows, err := store.Recent(ctx, audit.Filter{
		SessionID: strings.TrimSpace(opts.sessionID),
		Outcome:   audit.Outcome(strings.TrimSpace(opts.outcome)),
		Since:     since,
		Limit:     opts.limit,
	})
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report{Since: since, Counts: counts, Attempts: rows})
	}

	fmt.Fprintf(out, "Submissions since %s\n\n", since.UTC().Format(time.RFC3339))
	outcomes := make([]string, 0, len(counts))
	total := 0
	for o, n := range counts {
		outcomes = append(outcomes, string(o))
		total += n
	}
	sort.Strings(outcomes)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tCOUNT")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%d\n", o, counts[audit.Outcome(o)])
	}
	fmt.Fprintf(tw, "total\t%d\n", total)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Fprintln(out, "\nNo matching attempts.")
		return nil
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSESSION\tOUTCOME\tCODE\tREFERENCE\tDATE\tMODALITY")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.CreatedAt.UTC().Format(time.RFC3339),
			row.SessionID,
			row.Outcome,
			dash(row.ErrorCode),
			dash(row.ReferenceID),
			dash(row.ScheduledDate),
			dash(row.Modality),
		)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
