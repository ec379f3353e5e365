package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/de-tools/cloud-sentinel/pkg/models/store"
)

// FindingStore persists findings, scan reports and remediation records in DuckDB.
type FindingStore struct {
	db *sql.DB
}

func NewFindingStore(db *sql.DB) (*FindingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &FindingStore{db: db}, nil
}

func (s *FindingStore) Name() string {
	return "duckdb"
}

const findingColumns = `id, provider, rule, severity, status, title, description, remediation,
	resource_id, resource_name, resource_type, resource_kind, region, attributes, created_at, updated_at`

func (s *FindingStore) GetFinding(ctx context.Context, id string) (*store.FindingRecord, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+findingColumns+` FROM findings WHERE id = ?`, id)

	rec, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get finding %s: %w", id, err)
	}
	return &rec, nil
}

func (s *FindingStore) PutFinding(ctx context.Context, rec store.FindingRecord) error {
	attrs, err := marshalAttributes(rec.Attributes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO findings (` + findingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			provider = excluded.provider,
			rule = excluded.rule,
			severity = excluded.severity,
			status = excluded.status,
			title = excluded.title,
			description = excluded.description,
			remediation = excluded.remediation,
			resource_id = excluded.resource_id,
			resource_name = excluded.resource_name,
			resource_type = excluded.resource_type,
			resource_kind = excluded.resource_kind,
			region = excluded.region,
			attributes = excluded.attributes,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`

	_, err = conn(ctx, s.db).ExecContext(ctx, query,
		rec.ID,
		rec.Provider,
		rec.Rule,
		rec.Severity,
		rec.Status,
		rec.Title,
		rec.Description,
		rec.Remediation,
		rec.ResourceID,
		rec.ResourceName,
		rec.ResourceType,
		rec.ResourceKind,
		rec.Region,
		attrs,
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert finding %s: %w", rec.ID, err)
	}
	return nil
}

func (s *FindingStore) QueryFindings(ctx context.Context, filter store.FindingFilter, limit int) ([]store.FindingRecord, error) {
	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"provider", filter.Provider},
		{"severity", filter.Severity},
		{"status", filter.Status},
		{"resource_kind", filter.ResourceKind},
	} {
		if c.value == "" {
			continue
		}
		conditions = append(conditions, c.column+" = ?")
		args = append(args, c.value)
	}

	query := `SELECT ` + findingColumns + ` FROM findings`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	records := make([]store.FindingRecord, 0)
	for rows.Next() {
		rec, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteBefore removes every record older than cutoff in a single transaction.
func (s *FindingStore) DeleteBefore(ctx context.Context, cutoff time.Time) (store.CleanupResult, error) {
	var result store.CleanupResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin cleanup transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txCtx := withTx(ctx, tx)
	for table, counter := range map[string]*int64{
		"findings":            &result.Findings,
		"scan_reports":        &result.Reports,
		"remediation_records": &result.Remediations,
	} {
		res, err := conn(txCtx, s.db).ExecContext(txCtx,
			fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", table), cutoff.UTC())
		if err != nil {
			return store.CleanupResult{}, fmt.Errorf("cleanup %s: %w", table, err)
		}
		if *counter, err = res.RowsAffected(); err != nil {
			return store.CleanupResult{}, fmt.Errorf("cleanup %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return store.CleanupResult{}, fmt.Errorf("commit cleanup: %w", err)
	}
	return result, nil
}

func (s *FindingStore) InsertReport(ctx context.Context, rec store.ReportRecord) error {
	ids, err := json.Marshal(rec.FindingIDs)
	if err != nil {
		return fmt.Errorf("marshal finding ids: %w", err)
	}

	_, err = conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO scan_reports (scan_id, cloud_provider, findings_count, finding_ids, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ScanID,
		rec.Provider,
		rec.FindingsCount,
		string(ids),
		string(rec.Payload),
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", rec.ScanID, err)
	}
	return nil
}

func (s *FindingStore) InsertRemediation(ctx context.Context, rec store.RemediationRecord) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO remediation_records (id, finding_id, action_taken, outcome, error, simulated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.FindingID,
		rec.ActionTaken,
		rec.Outcome,
		rec.Error,
		rec.Simulated,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert remediation record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *FindingStore) ListRemediations(ctx context.Context, findingID string) ([]store.RemediationRecord, error) {
	query := `SELECT id, finding_id, action_taken, outcome, error, simulated, created_at FROM remediation_records`
	var args []any
	if findingID != "" {
		query += " WHERE finding_id = ?"
		args = append(args, findingID)
	}
	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list remediation records: %w", err)
	}
	defer rows.Close()

	records := make([]store.RemediationRecord, 0)
	for rows.Next() {
		var (
			rec                 store.RemediationRecord
			action, errorString sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.FindingID, &action, &rec.Outcome, &errorString, &rec.Simulated, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan remediation record: %w", err)
		}
		rec.ActionTaken = action.String
		rec.Error = errorString.String
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *FindingStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row rowScanner) (store.FindingRecord, error) {
	var (
		rec                                    store.FindingRecord
		rule, title, description, remediation  sql.NullString
		resourceID, resourceName, resourceType sql.NullString
		resourceKind, region, attributes       sql.NullString
	)
	err := row.Scan(
		&rec.ID,
		&rec.Provider,
		&rule,
		&rec.Severity,
		&rec.Status,
		&title,
		&description,
		&remediation,
		&resourceID,
		&resourceName,
		&resourceType,
		&resourceKind,
		&region,
		&attributes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return store.FindingRecord{}, err
	}

	rec.Rule = rule.String
	rec.Title = title.String
	rec.Description = description.String
	rec.Remediation = remediation.String
	rec.ResourceID = resourceID.String
	rec.ResourceName = resourceName.String
	rec.ResourceType = resourceType.String
	rec.ResourceKind = resourceKind.String
	rec.Region = region.String
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()

	if attributes.Valid && attributes.String != "" {
		if err := json.Unmarshal([]byte(attributes.String), &rec.Attributes); err != nil {
			return store.FindingRecord{}, fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	return rec, nil
}

func marshalAttributes(attrs map[string]string) (any, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}
	return string(raw), nil
}
