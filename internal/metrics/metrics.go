// Package metrics implements the Metrics Log (C3): an append-only,
// per-repository CSV of TaskMetric rows, plus read-only summary and
// recent-rows helpers. Encoding uses encoding/csv, the same package the
// teacher's internal/cli/helpers/formatter.go reaches for when it needs
// delimited output — there is no third-party CSV writer anywhere in the
// pack, and the format itself is too small to warrant pulling one in
// (see DESIGN.md).
package metrics

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/forge-mcp/forge/internal/constants"
	"github.com/forge-mcp/forge/internal/plan"
)

var header = []string{
	"task_id", "utc_timestamp", "role", "tool", "model",
	"input_tokens", "output_tokens", "cache_read_tokens", "cache_write_tokens",
	"input_cost_usd", "output_cost_usd", "total_cost_usd",
	"duration_sec", "success", "execution_mode", "repo_root", "scope_globs", "error_message",
}

// Log is an append-only CSV metrics sink bound to one repository's
// metrics file.
type Log struct {
	path string
	mu   sync.Mutex
}

// Open returns a Log writing to dir/tasks.csv, creating dir and the
// header row if this is the first call for this file.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create metrics dir: %w", err)
	}
	path := filepath.Join(dir, "tasks.csv")
	l := &Log{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				return l, nil // lost the race to another writer; header already there
			}
			return nil, fmt.Errorf("create metrics file: %w", err)
		}
		defer f.Close()
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return nil, fmt.Errorf("write metrics header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("flush metrics header: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat metrics file: %w", err)
	}

	return l, nil
}

// Record appends one CSV row for metric. A single O_APPEND write of the
// fully-rendered line keeps concurrent writers from interleaving partial
// rows, mirroring the write-then-rename alternative named in §4.3 without
// needing a temp file for every single-line append.
func (l *Log) Record(metric plan.TaskMetric) error {
	row := []string{
		metric.TaskID,
		metric.UTCTimestamp,
		string(metric.Role),
		metric.Tool,
		metric.Model,
		strconv.Itoa(metric.InputTokens),
		strconv.Itoa(metric.OutputTokens),
		strconv.Itoa(metric.CacheReadTokens),
		strconv.Itoa(metric.CacheWriteTokens),
		strconv.FormatFloat(metric.InputCostUSD, 'f', -1, 64),
		strconv.FormatFloat(metric.OutputCostUSD, 'f', -1, 64),
		strconv.FormatFloat(metric.TotalCostUSD, 'f', -1, 64),
		strconv.FormatFloat(metric.DurationSec, 'f', -1, 64),
		strconv.FormatBool(metric.Success),
		string(metric.ExecutionMode),
		metric.RepoRoot,
		metric.ScopeGlobs,
		metric.ErrorMessage,
	}

	var line bytes.Buffer
	w := csv.NewWriter(&line)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("encode metric row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush metric row: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open metrics file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line.Bytes()); err != nil {
		return fmt.Errorf("append metric row: %w", err)
	}
	return nil
}

// Rows reads every recorded row, tolerant of a concurrent writer
// appending mid-read (csv.Reader simply stops at the last complete
// record).
func (l *Log) Rows() ([]plan.TaskMetric, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open metrics file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // parseRow checks the count per row

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read metrics rows: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([]plan.TaskMetric, 0, len(records)-1)
	for _, rec := range records[1:] {
		m, err := parseRow(rec)
		if err != nil {
			continue // a partially-written last row; skip rather than fail the read
		}
		rows = append(rows, m)
	}
	return rows, nil
}

func roleOf(s string) constants.Role { return constants.Role(s) }

func parseRow(rec []string) (plan.TaskMetric, error) {
	if len(rec) != len(header) {
		return plan.TaskMetric{}, fmt.Errorf("metrics: row has %d fields, want %d", len(rec), len(header))
	}
	inputTokens, _ := strconv.Atoi(rec[5])
	outputTokens, _ := strconv.Atoi(rec[6])
	cacheRead, _ := strconv.Atoi(rec[7])
	cacheWrite, _ := strconv.Atoi(rec[8])
	inputCost, _ := strconv.ParseFloat(rec[9], 64)
	outputCost, _ := strconv.ParseFloat(rec[10], 64)
	totalCost, _ := strconv.ParseFloat(rec[11], 64)
	duration, _ := strconv.ParseFloat(rec[12], 64)
	success, _ := strconv.ParseBool(rec[13])

	return plan.TaskMetric{
		TaskID:           rec[0],
		UTCTimestamp:     rec[1],
		Role:             roleOf(rec[2]),
		Tool:             rec[3],
		Model:            rec[4],
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		CacheReadTokens:  cacheRead,
		CacheWriteTokens: cacheWrite,
		InputCostUSD:     inputCost,
		OutputCostUSD:    outputCost,
		TotalCostUSD:     totalCost,
		DurationSec:      duration,
		Success:          success,
		ExecutionMode:    plan.ExecutionMode(rec[14]),
		RepoRoot:         rec[15],
		ScopeGlobs:       rec[16],
		ErrorMessage:     rec[17],
	}, nil
}

// Summary aggregates every row into simple counts and totals, the shape
// a `forge-daemon metrics` command prints.
type Summary struct {
	TaskCount      int
	SuccessCount   int
	TotalCostUSD   float64
	TotalDurationS float64
}

// Summarize computes a Summary over all recorded rows.
func (l *Log) Summarize() (Summary, error) {
	rows, err := l.Rows()
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	for _, r := range rows {
		s.TaskCount++
		if r.Success {
			s.SuccessCount++
		}
		s.TotalCostUSD += r.TotalCostUSD
		s.TotalDurationS += r.DurationSec
	}
	return s, nil
}

// Recent returns up to n most-recently-appended rows.
func (l *Log) Recent(n int) ([]plan.TaskMetric, error) {
	rows, err := l.Rows()
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(rows) {
		return rows, nil
	}
	return rows[len(rows)-n:], nil
}
