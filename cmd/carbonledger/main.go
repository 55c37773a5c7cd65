// Command carbonledger is the CLI for the calculation and provenance engine.
// It runs the full demo pipeline over a local database and verifies stored
// run signatures.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/carbonledger/core/pkg/calc"
	"github.com/carbonledger/core/pkg/config"
	"github.com/carbonledger/core/pkg/provenance"
	"github.com/carbonledger/core/pkg/service"
	"github.com/carbonledger/core/pkg/store"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 0
	}

	switch args[1] {
	case "demo":
		return runDemoCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "history":
		return runHistoryCmd(args[2:], stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "carbonledger - auditable GHG calculation and provenance engine")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  carbonledger <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  demo      Seed factors, compute, review, approve, sign and audit a run")
	fmt.Fprintln(w, "  verify    Verify the latest signature of a stored run")
	fmt.Fprintln(w, "  history   Show the version history of an emission factor")
	fmt.Fprintln(w, "  audit     Audit a stored run against current factor state")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openService(cfg *config.Config, log *slog.Logger) (*service.Service, func(), error) {
	driver := cfg.DatabaseDriver
	if driver == "sqlite3" {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	st, err := store.NewSQLStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	keys := provenance.NewKeyProvider(cfg.SigningPrivatePEM, cfg.SigningPublicPEM)
	svc := service.New(st, keys).WithLogger(log)
	return svc, func() { _ = db.Close() }, nil
}

func runDemoCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	org := fs.String("org", "demo-org", "organization ID")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	log := setupLogger(cfg)
	svc, closeFn, err := openService(cfg, log)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer closeFn()
	ctx := context.Background()

	n, err := svc.SeedFactors(ctx, *org, "demo")
	if err != nil {
		fmt.Fprintln(stderr, "Error seeding factors:", err)
		return 1
	}
	fmt.Fprintf(stdout, "Seeded %d emission factors\n", n)

	a1, err := svc.CreateActivity(ctx, &calc.Activity{
		OrgID:  *org,
		Name:   "Backup generator diesel",
		EFKey:  "diesel_stationary",
		Inputs: map[string]any{"litres": 120.0},
		Period: "2024-05",
	})
	if err != nil {
		fmt.Fprintln(stderr, "Error creating activity:", err)
		return 1
	}
	a2, err := svc.CreateActivity(ctx, &calc.Activity{
		OrgID:  *org,
		Name:   "Outbound road freight",
		EFKey:  "freight_road_ton_km",
		Inputs: map[string]any{"distance_km": 250.0, "payload_ton": 2.0, "load_factor": 0.8},
		Period: "2024-05",
	})
	if err != nil {
		fmt.Fprintln(stderr, "Error creating activity:", err)
		return 1
	}

	run, err := svc.RunCalculation(ctx, *org, []string{a1.ID, a2.ID}, calc.RunTypeCFO)
	if err != nil {
		fmt.Fprintln(stderr, "Error computing run:", err)
		return 1
	}
	fmt.Fprintf(stdout, "Run %s: %.4f kgCO2e (%.6f tCO2e) across %d activities\n",
		run.ID, run.TotalKgCO2e, run.TotalTCO2e, len(run.Details.Rows))

	if _, err := svc.ReviewRun(ctx, *org, run.ID, "demo-reviewer", "demo review"); err != nil {
		fmt.Fprintln(stderr, "Error reviewing run:", err)
		return 1
	}
	if _, err := svc.ApproveRun(ctx, *org, run.ID, "demo-approver", "demo approval"); err != nil {
		fmt.Fprintln(stderr, "Error approving run:", err)
		return 1
	}

	sig, err := svc.SignRun(ctx, *org, run.ID, "demo-approver")
	if err != nil {
		fmt.Fprintln(stderr, "Error signing run:", err)
		return 1
	}
	fmt.Fprintf(stdout, "Signed run with %s, hash %s\n", sig.Algo, sig.RunHash)

	v, err := svc.VerifyRun(ctx, *org, run.ID)
	if err != nil {
		fmt.Fprintln(stderr, "Error verifying run:", err)
		return 1
	}
	fmt.Fprintf(stdout, "Verification: ok=%v hash_matches=%v signature_valid=%v\n",
		v.OK, v.HashMatches, v.SignatureValid)

	report, err := svc.AuditRun(ctx, *org, run.ID)
	if err != nil {
		fmt.Fprintln(stderr, "Error auditing run:", err)
		return 1
	}
	fmt.Fprintf(stdout, "Audit score %d (%d findings)\n", report.Score, len(report.Findings))
	return 0
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	org := fs.String("org", "demo-org", "organization ID")
	runID := fs.String("run", "", "run ID to verify")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *runID == "" {
		fmt.Fprintln(stderr, "Usage: carbonledger verify -run <run-id> [-org <org>]")
		return 2
	}

	cfg := config.Load()
	svc, closeFn, err := openService(cfg, setupLogger(cfg))
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer closeFn()

	v, err := svc.VerifyRun(context.Background(), *org, *runID)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	printJSON(stdout, v)
	if !v.OK {
		return 1
	}
	return 0
}

func runHistoryCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	org := fs.String("org", "demo-org", "organization ID")
	key := fs.String("ef", "", "emission factor key")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *key == "" {
		fmt.Fprintln(stderr, "Usage: carbonledger history -ef <ef-key> [-org <org>]")
		return 2
	}

	cfg := config.Load()
	svc, closeFn, err := openService(cfg, setupLogger(cfg))
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer closeFn()

	versions, err := svc.FactorHistory(context.Background(), *org, *key)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	for _, v := range versions {
		to := "open"
		if v.EffectiveTo != nil {
			to = v.EffectiveTo.Format("2006-01-02")
		}
		fmt.Fprintf(stdout, "%s  %s .. %s  hash=%s  by=%s  %s\n",
			v.ID, v.EffectiveFrom.Format("2006-01-02"), to,
			v.PayloadHash[:12], v.ChangedBy, v.ChangeReason)
	}
	return 0
}

func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	org := fs.String("org", "demo-org", "organization ID")
	runID := fs.String("run", "", "run ID to audit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *runID == "" {
		fmt.Fprintln(stderr, "Usage: carbonledger audit -run <run-id> [-org <org>]")
		return 2
	}

	cfg := config.Load()
	svc, closeFn, err := openService(cfg, setupLogger(cfg))
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer closeFn()

	report, err := svc.AuditRun(context.Background(), *org, *runID)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	printJSON(stdout, report)
	return 0
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
