package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/restaurant-platform/courierbroker/core/model"
)

// RotatingJSONLStore stores selection records in a JSONL file with
// automatic rotation.
type RotatingJSONLStore struct {
	logger *lumberjack.Logger
	path   string
}

// NewRotatingJSONLStore creates a store with rotation options in megabytes
// and days.
func NewRotatingJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingJSONLStore, error) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   false,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &RotatingJSONLStore{logger: lj, path: path}, nil
}

// Append writes the record and triggers rotation if needed.
func (s *RotatingJSONLStore) Append(ctx context.Context, rec model.SelectionResult) error {
	_ = ctx
	enc := json.NewEncoder(s.logger)
	return enc.Encode(rec)
}

// Query reads all log files including rotated ones.
func (s *RotatingJSONLStore) Query(ctx context.Context, q Query) ([]model.SelectionResult, error) {
	_ = ctx
	files, err := filepath.Glob(s.path + "*")
	if err != nil {
		return nil, err
	}
	var res []model.SelectionResult
	for _, f := range files {
		file, err := os.Open(f)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			var r model.SelectionResult
			if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
				continue
			}
			if matches(r, q) {
				res = append(res, r)
			}
		}
		_ = file.Close()
	}
	return res, nil
}

// Close closes the underlying rotating writer.
func (s *RotatingJSONLStore) Close() error { return s.logger.Close() }
