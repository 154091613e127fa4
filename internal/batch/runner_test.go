package batch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/raaihank/doc-sentinel/internal/anonymizer"
	"github.com/raaihank/doc-sentinel/internal/extract"
	"github.com/raaihank/doc-sentinel/internal/processor"
	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProcessor struct {
	mu    sync.Mutex
	seen  []string
	fails map[string]bool
}

func (f *fakeProcessor) ProcessFile(_ context.Context, path string, req processor.Request) (*processor.Result, error) {
	f.mu.Lock()
	f.seen = append(f.seen, filepath.Base(path))
	f.mu.Unlock()

	if f.fails[filepath.Base(path)] {
		return nil, errors.New("extraction failed")
	}
	stats := anonymizer.NewStats()
	stats.Add("email", 2)
	return &processor.Result{
		Records:    []json.RawMessage{json.RawMessage(`{"referencia":"A1"}`)},
		Stats:      stats,
		Extraction: &extract.Result{SourceType: extract.SourceText},
	}, nil
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
}

func readRows(t *testing.T, path string) []Row {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	reader := parquet.NewReader(f)
	defer reader.Close()

	var rows []Row
	for {
		var row Row
		err := reader.Read(&row)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return rows
}

func TestRunnerWritesParquet(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.txt", "b.csv", "c.docx", ".oculto.txt", "sub/d.txt")
	fake := &fakeProcessor{fails: map[string]bool{"b.csv": true}}

	out := filepath.Join(t.TempDir(), "out", "runs.parquet")
	runner := NewRunner(fake, Config{Workers: 2, Supplier: "acme", Anonymize: true}, zap.NewNop())
	summary, err := runner.Run(context.Background(), dir, out)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.txt", "b.csv"}, fake.seen)
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(2), summary.TotalReplacements)
	assert.Equal(t, int64(1), summary.Records)

	rows := readRows(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, filepath.Join(dir, "a.txt"), rows[0].Path)
	assert.Equal(t, StatusOK, rows[0].Status)
	assert.Equal(t, "acme", rows[0].Supplier)
	assert.Equal(t, "documento", rows[0].Kind)
	assert.Equal(t, extract.SourceText, rows[0].SourceType)
	assert.JSONEq(t, `{"email":2}`, rows[0].ByType)
	assert.JSONEq(t, `[{"referencia":"A1"}]`, rows[0].Records)

	assert.Equal(t, StatusError, rows[1].Status)
	assert.Equal(t, "extraction failed", rows[1].Error)
	assert.Equal(t, "[]", rows[1].Records)
}

func TestRunnerRecursive(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.txt", "sub/d.txt", ".git/config.txt")
	fake := &fakeProcessor{}

	runner := NewRunner(fake, Config{Recursive: true}, zap.NewNop())
	_, err := runner.Run(context.Background(), dir, filepath.Join(t.TempDir(), "r.parquet"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "d.txt"}, fake.seen)
}

func TestRunnerRejectsUnknownKind(t *testing.T) {
	runner := NewRunner(&fakeProcessor{}, Config{Kind: "factura"}, zap.NewNop())
	_, err := runner.Run(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "r.parquet"))
	assert.Error(t, err)
}

func TestRunnerCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.txt")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(&fakeProcessor{}, Config{}, zap.NewNop())
	_, err := runner.Run(ctx, dir, filepath.Join(t.TempDir(), "r.parquet"))
	assert.ErrorIs(t, err, context.Canceled)
}
