package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/de-tools/cloud-sentinel/pkg/adapters"
	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

const filePrefix = "security_report_"

// FileName derives the report file name from the scan id, so it is unique per
// scan: scan-20260102030405-001 becomes security_report_20260102030405-001.json.
func FileName(r domain.ScanReport) string {
	suffix := strings.TrimPrefix(r.ScanID, "scan-")
	if suffix == "" {
		suffix = r.Timestamp.UTC().Format("20060102150405")
	}
	return filePrefix + suffix + ".json"
}

func Encode(r domain.ScanReport) ([]byte, error) {
	data, err := json.MarshalIndent(adapters.MapScanReportDomainToApi(r), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report %s: %w", r.ScanID, err)
	}
	return data, nil
}

// WriteFile writes the report document into dir and returns its path.
func WriteFile(dir string, r domain.ScanReport) (string, []byte, error) {
	data, err := Encode(r)
	if err != nil {
		return "", nil, err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create report dir: %w", err)
	}

	path := filepath.Join(dir, FileName(r))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", nil, fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return path, data, nil
}
