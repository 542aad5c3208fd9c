package sheets

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// Memory is an in-process lead store with the same header semantics as the
// worksheet store. It backs CSV rehearsals and tests.
type Memory struct {
	mu      sync.Mutex
	headers []string
	rows    [][]string
}

// NewMemory creates a store from a header row and data rows.
func NewMemory(headers []string, rows [][]string) *Memory {
	m := &Memory{headers: append([]string(nil), headers...)}
	for _, r := range rows {
		m.rows = append(m.rows, m.pad(r))
	}
	return m
}

// LoadCSV reads a CSV file whose first record is the header row.
func LoadCSV(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sheets: open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("sheets: read csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheets: csv %s has no header row", path)
	}
	return NewMemory(records[0], records[1:]), nil
}

// WriteCSV saves the current contents, header row first. The file is
// replaced atomically so a reader never sees a partial write.
func (m *Memory) WriteCSV(path string) error {
	records := m.records()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("sheets: create csv: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sheets: write csv %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("sheets: write csv %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("sheets: replace csv %s: %w", path, err)
	}
	return nil
}

// records copies the header and every row, so encoding can run unlocked.
func (m *Memory) records() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, 0, len(m.rows)+1)
	out = append(out, append([]string(nil), m.headers...))
	for _, r := range m.rows {
		out = append(out, append([]string(nil), r...))
	}
	return out
}

// Leads returns a copy of every data row keyed by header.
func (m *Memory) Leads(ctx context.Context) ([]map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]string, 0, len(m.rows))
	for _, r := range m.rows {
		row := make(map[string]string, len(m.headers))
		for i, h := range m.headers {
			if h != "" {
				row[h] = r[i]
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// UpdateFields sets fields on a 1-based sheet row. Unknown headers are ignored.
func (m *Memory) UpdateFields(ctx context.Context, row int, updates map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := row - 2
	if idx < 0 || idx >= len(m.rows) {
		return fmt.Errorf("sheets: row %d out of range", row)
	}
	for field, value := range updates {
		for i, h := range m.headers {
			if h == field {
				m.rows[idx][i] = value
				break
			}
		}
	}
	return nil
}

// Row returns a copy of one data row keyed by header, or nil when out of range.
func (m *Memory) Row(row int) map[string]string {
	leads, _ := m.Leads(context.Background())
	idx := row - 2
	if idx < 0 || idx >= len(leads) {
		return nil
	}
	return leads[idx]
}

func (m *Memory) pad(r []string) []string {
	out := make([]string, len(m.headers))
	copy(out, r)
	return out
}

// CSVFile is a Memory store that saves itself after every update, so the
// sending checkpoint survives a crash as it does in a worksheet.
type CSVFile struct {
	*Memory
	path string
}

// OpenCSV loads path and returns a write-through store over it.
func OpenCSV(path string) (*CSVFile, error) {
	m, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	return &CSVFile{Memory: m, path: path}, nil
}

// UpdateFields applies updates in memory and then rewrites the file.
func (c *CSVFile) UpdateFields(ctx context.Context, row int, updates map[string]string) error {
	if err := c.Memory.UpdateFields(ctx, row, updates); err != nil {
		return err
	}
	return c.Memory.WriteCSV(c.path)
}
