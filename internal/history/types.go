package history

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Run is one processed document
type Run struct {
	ID                string        `db:"id" json:"id"`
	Supplier          string        `db:"supplier" json:"proveedor"`
	Kind              string        `db:"kind" json:"tipo"`
	Source            string        `db:"source" json:"origen"`
	Anonymized        bool          `db:"anonymized" json:"anonimizado"`
	TotalReplacements int           `db:"total_replacements" json:"total_replacements"`
	ByType            Counts        `db:"by_type" json:"by_type"`
	Records           int           `db:"records" json:"registros"`
	CacheHit          bool          `db:"cache_hit" json:"cache"`
	DurationMs        int64         `db:"duration_ms" json:"duration_ms"`
	Error             string        `db:"error" json:"error,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	Duration          time.Duration `db:"-" json:"-"`
}

// Counts is the per-category replacement map stored as a JSONB column
type Counts map[string]int

// Value implements driver.Valuer
func (c Counts) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]int(c))
}

// Scan implements sql.Scanner
func (c *Counts) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*c = Counts{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported by_type column type %T", src)
	}
	m := map[string]int{}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode by_type: %w", err)
	}
	*c = m
	return nil
}

// Summary aggregates the stored runs
type Summary struct {
	TotalRuns         int64 `db:"total_runs" json:"total_runs"`
	FailedRuns        int64 `db:"failed_runs" json:"failed_runs"`
	CacheHits         int64 `db:"cache_hits" json:"cache_hits"`
	TotalReplacements int64 `db:"total_replacements" json:"total_replacements"`
}
