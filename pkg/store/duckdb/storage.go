package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/marcboeker/go-duckdb/v2"
)

const FindingsTableSchema = `
	CREATE TABLE IF NOT EXISTS findings (
		id VARCHAR PRIMARY KEY,
		provider VARCHAR NOT NULL,
		rule VARCHAR,
		severity VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		title VARCHAR,
		description VARCHAR,
		remediation VARCHAR,
		resource_id VARCHAR,
		resource_name VARCHAR,
		resource_type VARCHAR,
		resource_kind VARCHAR,
		region VARCHAR,
		attributes VARCHAR,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
`

const ScanReportsTableSchema = `
	CREATE TABLE IF NOT EXISTS scan_reports (
		scan_id VARCHAR PRIMARY KEY,
		cloud_provider VARCHAR NOT NULL,
		findings_count INTEGER NOT NULL,
		finding_ids VARCHAR,
		payload VARCHAR,
		created_at TIMESTAMP NOT NULL
	);
`

const RemediationRecordsTableSchema = `
	CREATE TABLE IF NOT EXISTS remediation_records (
		id VARCHAR PRIMARY KEY,
		finding_id VARCHAR NOT NULL,
		action_taken VARCHAR,
		outcome VARCHAR NOT NULL,
		error VARCHAR,
		simulated BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	);
`

var bootQueries = []string{
	FindingsTableSchema,
	ScanReportsTableSchema,
	RemediationRecordsTableSchema,
}

type Settings struct {
	DbPath string
}

func NewDB(settings Settings) (*sql.DB, error) {
	c, err := duckdb.NewConnector(fmt.Sprintf("%s?threads=4", settings.DbPath), func(exec driver.ExecerContext) error {
		bootQueries := append([]string{}, bootQueries...)

		for _, query := range bootQueries {
			_, err := exec.ExecContext(context.Background(), query, nil)
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(c)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open duckdb %s: %w", settings.DbPath, err)
	}
	return db, nil
}
