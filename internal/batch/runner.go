package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raaihank/doc-sentinel/internal/extract"
	"github.com/raaihank/doc-sentinel/internal/llm"
	"github.com/raaihank/doc-sentinel/internal/processor"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// FileProcessor processes a single document file
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string, req processor.Request) (*processor.Result, error)
}

// Runner processes every supported file of a directory
type Runner struct {
	processor FileProcessor
	config    Config
	logger    *zap.Logger
}

// NewRunner creates a batch runner
func NewRunner(p FileProcessor, config Config, logger *zap.Logger) *Runner {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.Kind == "" {
		config.Kind = string(llm.KindDocument)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{processor: p, config: config, logger: logger}
}

// Run processes the files under dir and writes one parquet row per file to
// output. Per-file failures are recorded in the rows, not returned.
func (r *Runner) Run(ctx context.Context, dir, output string) (*Summary, error) {
	kind, err := llm.ParseKind(r.config.Kind)
	if err != nil {
		return nil, err
	}

	files, err := r.collect(dir)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Starting batch run",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Int("workers", r.config.Workers))

	start := time.Now()
	rows := r.processAll(ctx, files, kind)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}

	if err := WriteParquet(output, rows); err != nil {
		return nil, err
	}

	summary := summarize(rows)
	summary.Duration = time.Since(start)
	summary.Output = output

	r.logger.Info("Batch run completed",
		zap.Int("files", summary.Files),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int64("records", summary.Records),
		zap.Int64("total_replacements", summary.TotalReplacements),
		zap.Duration("duration", summary.Duration),
		zap.String("output", output))

	return summary, nil
}

// collect lists supported files in dir in lexical order
func (r *Runner) collect(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (!r.config.Recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !extract.Supported(path) {
			r.logger.Debug("Skipping unsupported file", zap.String("path", path))
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return files, nil
}

// processAll fans files out to the worker pool and returns rows in input order
func (r *Runner) processAll(ctx context.Context, files []string, kind llm.Kind) []Row {
	rows := make([]Row, len(files))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rows[i] = r.processOne(ctx, files[i], kind)
			}
		}()
	}

	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
	return rows
}

func (r *Runner) processOne(ctx context.Context, path string, kind llm.Kind) Row {
	if r.config.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.FileTimeout)
		defer cancel()
	}

	start := time.Now()
	row := Row{Path: path, Supplier: r.config.Supplier, Kind: string(kind), ByType: "{}", Records: "[]"}

	res, err := r.processor.ProcessFile(ctx, path, processor.Request{
		Supplier:   r.config.Supplier,
		Anonymize:  r.config.Anonymize,
		Heuristics: r.config.Heuristics,
		Kind:       kind,
		Source:     filepath.Base(path),
	})
	row.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		r.logger.Warn("File failed", zap.String("path", path), zap.Error(err))
		row.Status = StatusError
		row.Error = err.Error()
		return row
	}

	row.Status = StatusOK
	row.CacheHit = res.CacheHit
	row.RecordCount = int64(len(res.Records))
	if res.Extraction != nil {
		row.SourceType = res.Extraction.SourceType
	}
	if res.Stats != nil {
		row.TotalReplacements = int64(res.Stats.TotalReplacements)
		if b, err := json.Marshal(res.Stats.ByType); err == nil {
			row.ByType = string(b)
		}
	}
	if b, err := json.Marshal(res.Records); err == nil {
		row.Records = string(b)
	}
	return row
}

// WriteParquet writes rows to path, replacing any existing file
func WriteParquet(path string, rows []Row) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[Row](file)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return file.Close()
}

func summarize(rows []Row) *Summary {
	s := &Summary{Files: len(rows)}
	for _, row := range rows {
		if row.Status == StatusOK {
			s.Succeeded++
		} else {
			s.Failed++
			s.Errors = append(s.Errors, fmt.Sprintf("%s: %s", row.Path, row.Error))
		}
		s.Records += row.RecordCount
		s.TotalReplacements += row.TotalReplacements
	}
	sort.Strings(s.Errors)
	return s
}
