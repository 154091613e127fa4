package batch

import (
	"time"
)

// Row is one processed file in the parquet export
type Row struct {
	Path              string `parquet:"path" json:"path"`
	Supplier          string `parquet:"supplier" json:"proveedor"`
	Kind              string `parquet:"kind" json:"tipo"`
	Status            string `parquet:"status" json:"status"`
	Error             string `parquet:"error" json:"error"`
	SourceType        string `parquet:"source_type" json:"source_type"`
	TotalReplacements int64  `parquet:"total_replacements" json:"total_replacements"`
	ByType            string `parquet:"by_type" json:"by_type"`
	RecordCount       int64  `parquet:"record_count" json:"record_count"`
	Records           string `parquet:"records" json:"records"`
	CacheHit          bool   `parquet:"cache_hit" json:"cache_hit"`
	DurationMs        int64  `parquet:"duration_ms" json:"duration_ms"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Config contains batch run configuration
type Config struct {
	Workers    int
	Supplier   string
	Kind       string
	Anonymize  bool
	Heuristics bool
	// Recursive descends into subdirectories
	Recursive bool
	// FileTimeout bounds the processing of a single file
	FileTimeout time.Duration
}

// Summary reports the outcome of a batch run
type Summary struct {
	Files             int           `json:"files"`
	Succeeded         int           `json:"succeeded"`
	Failed            int           `json:"failed"`
	Records           int64         `json:"records"`
	TotalReplacements int64         `json:"total_replacements"`
	Duration          time.Duration `json:"duration"`
	Output            string        `json:"output"`
	Errors            []string      `json:"errors,omitempty"`
}
