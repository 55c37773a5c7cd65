package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"carbonledger"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "USAGE") {
		t.Error("usage should be printed to stdout")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"carbonledger", "bogus"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Unknown command") {
		t.Error("unknown command should be reported on stderr")
	}
}

func TestRunVerifyRequiresRunID(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"carbonledger", "verify"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestDemoPipelineAgainstSQLite(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:"+t.TempDir()+"/demo.db")
	t.Setenv("LOG_LEVEL", "ERROR")

	var stdout, stderr bytes.Buffer
	code := Run([]string{"carbonledger", "demo", "-org", "cli-test"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("demo failed (exit %d): %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "Seeded 4 emission factors") {
		t.Errorf("unexpected seed output: %s", out)
	}
	if !strings.Contains(out, "ok=true") {
		t.Errorf("verification should pass: %s", out)
	}
	if !strings.Contains(out, "Audit score 100") {
		t.Errorf("clean demo data should score 100: %s", out)
	}
}
