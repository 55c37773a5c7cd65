package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carbonledger/core/pkg/calc"
	"github.com/carbonledger/core/pkg/factor"
	"github.com/carbonledger/core/pkg/ledger"
	"github.com/carbonledger/core/pkg/provenance"
)

// SQLStore implements Store over database/sql. It uses $n placeholders and
// ISO-8601 TEXT timestamps, which both Postgres (lib/pq) and SQLite
// (modernc.org/sqlite) accept, so one implementation serves both drivers.
//
// Factor and activity documents are wide and mostly read whole, so they are
// stored as a JSON document column next to the columns queries filter on.
// Version rows get real columns because the close/append protocol updates
// them field-wise.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates the store and runs migrations.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS emission_factors (
			org_id TEXT NOT NULL,
			ef_key TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			doc TEXT NOT NULL,
			PRIMARY KEY (org_id, ef_key)
		)`,
		`CREATE TABLE IF NOT EXISTS activities (
			org_id TEXT NOT NULL,
			id TEXT NOT NULL,
			ef_key TEXT NOT NULL,
			created_at TEXT NOT NULL,
			doc TEXT NOT NULL,
			PRIMARY KEY (org_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS calculation_runs (
			org_id TEXT NOT NULL,
			id TEXT NOT NULL,
			run_type TEXT NOT NULL,
			review_status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			doc TEXT NOT NULL,
			PRIMARY KEY (org_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS emission_factor_versions (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			ef_key TEXT NOT NULL,
			effective_from TEXT NOT NULL,
			effective_to TEXT,
			payload TEXT NOT NULL,
			payload_hash TEXT NOT NULL,
			changed_by TEXT,
			change_reason TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ef_versions_key
			ON emission_factor_versions (org_id, ef_key)`,
		`CREATE TABLE IF NOT EXISTS run_signatures (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			algo TEXT NOT NULL,
			run_hash TEXT NOT NULL,
			signature_b64 TEXT NOT NULL,
			public_key_pem TEXT NOT NULL,
			signed_by TEXT,
			signed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_signatures_run
			ON run_signatures (org_id, run_id)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			actor TEXT,
			action TEXT NOT NULL,
			payload TEXT,
			created_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(context.Background(), stmt); err != nil {
			return err
		}
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func (s *SQLStore) UpsertFactor(ctx context.Context, f *factor.Factor) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding factor %q: %w", f.Key, err)
	}
	query := `
		INSERT INTO emission_factors (org_id, ef_key, status, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, ef_key) DO UPDATE SET status = $3, doc = $4
	`
	if _, err := s.db.ExecContext(ctx, query, f.OrgID, f.Key, f.Status, string(doc)); err != nil {
		return fmt.Errorf("upserting factor %q: %w", f.Key, err)
	}
	return nil
}

func (s *SQLStore) FactorByKey(ctx context.Context, orgID, key string) (*factor.Factor, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM emission_factors WHERE org_id = $1 AND ef_key = $2`,
		orgID, key,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f factor.Factor
	if err := json.Unmarshal([]byte(doc), &f); err != nil {
		return nil, fmt.Errorf("decoding factor %q: %w", key, err)
	}
	return &f, nil
}

func (s *SQLStore) ListFactors(ctx context.Context, orgID string) ([]*factor.Factor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM emission_factors WHERE org_id = $1 ORDER BY ef_key`, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*factor.Factor
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var f factor.Factor
		if err := json.Unmarshal([]byte(doc), &f); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *SQLStore) PutActivity(ctx context.Context, a *calc.Activity) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding activity %q: %w", a.ID, err)
	}
	query := `
		INSERT INTO activities (org_id, id, ef_key, created_at, doc)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id, id) DO UPDATE SET ef_key = $3, doc = $5
	`
	_, err = s.db.ExecContext(ctx, query,
		a.OrgID, a.ID, a.EFKey, a.CreatedAt.UTC().Format(timeLayout), string(doc))
	if err != nil {
		return fmt.Errorf("storing activity %q: %w", a.ID, err)
	}
	return nil
}

func (s *SQLStore) ActivityByID(ctx context.Context, orgID, id string) (*calc.Activity, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM activities WHERE org_id = $1 AND id = $2`, orgID, id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a calc.Activity
	if err := json.Unmarshal([]byte(doc), &a); err != nil {
		return nil, fmt.Errorf("decoding activity %q: %w", id, err)
	}
	return &a, nil
}

func (s *SQLStore) DeleteActivity(ctx context.Context, orgID, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM activities WHERE org_id = $1 AND id = $2`, orgID, id)
	return err
}

func (s *SQLStore) ListActivities(ctx context.Context, orgID string) ([]*calc.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM activities WHERE org_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*calc.Activity
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var a calc.Activity
		if err := json.Unmarshal([]byte(doc), &a); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SaveRun inserts the complete run as a single row, so rows, totals and
// snapshot are durable together or not at all.
func (s *SQLStore) SaveRun(ctx context.Context, run *calc.Run) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run %q: %w", run.ID, err)
	}
	query := `
		INSERT INTO calculation_runs (org_id, id, run_type, review_status, created_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		run.OrgID, run.ID, string(run.Type), string(run.ReviewStatus),
		run.CreatedAt.UTC().Format(timeLayout), string(doc))
	if err != nil {
		return fmt.Errorf("storing run %q: %w", run.ID, err)
	}
	return nil
}

func (s *SQLStore) RunByID(ctx context.Context, orgID, id string) (*calc.Run, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM calculation_runs WHERE org_id = $1 AND id = $2`, orgID, id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var run calc.Run
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return nil, fmt.Errorf("decoding run %q: %w", id, err)
	}
	return &run, nil
}

func (s *SQLStore) UpdateRunReview(ctx context.Context, run *calc.Run) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run %q: %w", run.ID, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE calculation_runs SET review_status = $1, doc = $2 WHERE org_id = $3 AND id = $4`,
		string(run.ReviewStatus), string(doc), run.OrgID, run.ID)
	if err != nil {
		return fmt.Errorf("updating run %q: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) ListRuns(ctx context.Context, orgID string) ([]*calc.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM calculation_runs WHERE org_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*calc.Run
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var run calc.Run
		if err := json.Unmarshal([]byte(doc), &run); err != nil {
			return nil, err
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}

func (s *SQLStore) OpenVersion(ctx context.Context, orgID, efKey string) (*ledger.Version, error) {
	query := `
		SELECT id, org_id, ef_key, effective_from, effective_to, payload,
		       payload_hash, changed_by, change_reason, created_at
		FROM emission_factor_versions
		WHERE org_id = $1 AND ef_key = $2 AND effective_to IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	v, err := scanVersion(s.db.QueryRowContext(ctx, query, orgID, efKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (s *SQLStore) CloseVersion(ctx context.Context, versionID string, effectiveTo time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE emission_factor_versions SET effective_to = $1 WHERE id = $2 AND effective_to IS NULL`,
		effectiveTo.UTC().Format("2006-01-02"), versionID)
	if err != nil {
		return fmt.Errorf("closing version %q: %w", versionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("open version %s: %w", versionID, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) AppendVersion(ctx context.Context, v *ledger.Version) error {
	payload, err := json.Marshal(v.Payload)
	if err != nil {
		return fmt.Errorf("encoding version payload: %w", err)
	}
	query := `
		INSERT INTO emission_factor_versions
			(id, org_id, ef_key, effective_from, effective_to, payload,
			 payload_hash, changed_by, change_reason, created_at)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		v.ID, v.OrgID, v.EFKey,
		v.EffectiveFrom.UTC().Format("2006-01-02"),
		string(payload), v.PayloadHash, v.ChangedBy, v.ChangeReason,
		v.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("appending version for %q: %w", v.EFKey, err)
	}
	return nil
}

func (s *SQLStore) VersionsByKey(ctx context.Context, orgID, efKey string) ([]*ledger.Version, error) {
	query := `
		SELECT id, org_id, ef_key, effective_from, effective_to, payload,
		       payload_hash, changed_by, change_reason, created_at
		FROM emission_factor_versions
		WHERE org_id = $1 AND ef_key = $2
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID, efKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*ledger.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*ledger.Version, error) {
	var (
		v            ledger.Version
		from         string
		to           sql.NullString
		payload      string
		changedBy    sql.NullString
		changeReason sql.NullString
		createdAt    string
	)
	err := row.Scan(&v.ID, &v.OrgID, &v.EFKey, &from, &to, &payload,
		&v.PayloadHash, &changedBy, &changeReason, &createdAt)
	if err != nil {
		return nil, err
	}

	if v.EffectiveFrom, err = time.Parse("2006-01-02", from); err != nil {
		return nil, fmt.Errorf("parsing effective_from: %w", err)
	}
	if to.Valid {
		t, err := time.Parse("2006-01-02", to.String)
		if err != nil {
			return nil, fmt.Errorf("parsing effective_to: %w", err)
		}
		v.EffectiveTo = &t
	}
	if err := json.Unmarshal([]byte(payload), &v.Payload); err != nil {
		return nil, fmt.Errorf("decoding version payload: %w", err)
	}
	v.ChangedBy = changedBy.String
	v.ChangeReason = changeReason.String
	if v.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &v, nil
}

func (s *SQLStore) AppendSignature(ctx context.Context, sig *provenance.Signature) error {
	query := `
		INSERT INTO run_signatures
			(id, org_id, run_id, algo, run_hash, signature_b64, public_key_pem, signed_by, signed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		sig.ID, sig.OrgID, sig.RunID, sig.Algo, sig.RunHash,
		sig.SignatureB64, sig.PublicKeyPEM, sig.SignedBy,
		sig.SignedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("appending signature for run %q: %w", sig.RunID, err)
	}
	return nil
}

func (s *SQLStore) LatestSignature(ctx context.Context, orgID, runID string) (*provenance.Signature, error) {
	query := `
		SELECT id, org_id, run_id, algo, run_hash, signature_b64, public_key_pem, signed_by, signed_at
		FROM run_signatures
		WHERE org_id = $1 AND run_id = $2
		ORDER BY signed_at DESC, id DESC
		LIMIT 1
	`
	var (
		sig      provenance.Signature
		signedBy sql.NullString
		signedAt string
	)
	err := s.db.QueryRowContext(ctx, query, orgID, runID).Scan(
		&sig.ID, &sig.OrgID, &sig.RunID, &sig.Algo, &sig.RunHash,
		&sig.SignatureB64, &sig.PublicKeyPEM, &signedBy, &signedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("signature for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	sig.SignedBy = signedBy.String
	if sig.SignedAt, err = time.Parse(timeLayout, signedAt); err != nil {
		return nil, fmt.Errorf("parsing signed_at: %w", err)
	}
	return &sig, nil
}

func (s *SQLStore) AppendEvent(ctx context.Context, ev *AuditEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}
	query := `
		INSERT INTO audit_events (id, org_id, actor, action, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		ev.ID, ev.OrgID, ev.Actor, ev.Action, string(payload),
		ev.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}
