package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ImportResult contains statistics about a JSONL import.
type ImportResult struct {
	RecordsImported int
	Errors          []string
}

// ReadJSONL decodes one Record per JSON value from r.
func ReadJSONL(r io.Reader) ([]Record, error) {
	var records []Record
	decoder := json.NewDecoder(r)
	lineNum := 0

	for {
		var rec Record
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", lineNum+1, err)
		}
		lineNum++
		records = append(records, rec)
	}

	return records, nil
}

// ImportJSONLFile seeds the embedded store from a JSONL file of records.
// Records without an id are reported in the result and skipped.
func ImportJSONLFile(ctx context.Context, db *SQLite, path string) (*ImportResult, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	records, err := ReadJSONL(file)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for i, rec := range records {
		if err := db.PutRecord(ctx, rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i+1, err))
			continue
		}
		result.RecordsImported++
	}
	return result, nil
}
