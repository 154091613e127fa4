package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/raaihank/doc-sentinel/internal/anonymizer"
	"github.com/raaihank/doc-sentinel/internal/cache"
	"github.com/raaihank/doc-sentinel/internal/extract"
	"github.com/raaihank/doc-sentinel/internal/history"
	"github.com/raaihank/doc-sentinel/internal/llm"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	records []json.RawMessage
	err     error
	calls   []llm.Request
}

func (f *fakeCompleter) Extract(_ context.Context, req llm.Request) (llm.Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Records: f.records}, nil
}

func (f *fakeCompleter) Model() string { return "gpt-4o" }

type fakeExtractor struct {
	result extract.Result
	err    error
}

func (f fakeExtractor) Extract(context.Context, string) (extract.Result, error) {
	return f.result, f.err
}

type memoryCache struct {
	entries map[string]*cache.Entry
}

func (m *memoryCache) Key(kind, text string) string { return kind + "|" + text }

func (m *memoryCache) Get(_ context.Context, key string) (*cache.Entry, bool) {
	e, ok := m.entries[key]
	return e, ok
}

func (m *memoryCache) Set(_ context.Context, key string, e *cache.Entry) error {
	m.entries[key] = e
	return nil
}

type runLog struct {
	mu   sync.Mutex
	runs []history.Run
}

func (r *runLog) Record(_ context.Context, run *history.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}

type eventLog struct {
	events []websocket.Event
}

func (e *eventLog) BroadcastEvent(ev websocket.Event) { e.events = append(e.events, ev) }

func newProcessor(c *fakeCompleter, x Extractor) *Processor {
	return New(anonymizer.New(nil, nil, nil), x, c, logger.NewNop())
}

func TestProcessAnonymizesBeforeLLM(t *testing.T) {
	completer := &fakeCompleter{records: []json.RawMessage{json.RawMessage(`{"referencia":"A1"}`)}}
	p := newProcessor(completer, nil)

	res, err := p.Process(context.Background(), Request{Text: "Contacto: juan@example.com", Anonymize: true})
	require.NoError(t, err)

	require.Len(t, completer.calls, 1)
	assert.Equal(t, "Contacto: [EMAIL]", completer.calls[0].Text)
	assert.True(t, completer.calls[0].Anonymized)
	assert.Equal(t, llm.KindDocument, completer.calls[0].Kind)
	require.NotNil(t, res.Stats)
	assert.Equal(t, 1, res.Stats.ByType["email"])
	assert.Len(t, res.Records, 1)
}

func TestProcessWithoutAnonymization(t *testing.T) {
	completer := &fakeCompleter{}
	p := newProcessor(completer, nil)

	res, err := p.Process(context.Background(), Request{Text: "Contacto: juan@example.com", Kind: llm.KindSalesData})
	require.NoError(t, err)
	assert.Nil(t, res.Stats)
	assert.Equal(t, "Contacto: juan@example.com", completer.calls[0].Text)
	assert.False(t, completer.calls[0].Anonymized)
	assert.NotNil(t, res.Records)
}

func TestProcessEmptyDocument(t *testing.T) {
	completer := &fakeCompleter{}
	p := newProcessor(completer, nil)

	_, err := p.Process(context.Background(), Request{Text: " \n\t", Anonymize: true})
	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.Empty(t, completer.calls)
}

func TestProcessUsesCache(t *testing.T) {
	completer := &fakeCompleter{records: []json.RawMessage{json.RawMessage(`{"a":1}`)}}
	mem := &memoryCache{entries: map[string]*cache.Entry{}}
	runs := &runLog{}
	p := newProcessor(completer, nil).WithCache(mem).WithHistory(runs)

	req := Request{Text: "Pedido para juan@example.com", Anonymize: true}
	first, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Contains(t, mem.entries, "documento|Pedido para [EMAIL]")

	second, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Len(t, completer.calls, 1)
	assert.Equal(t, first.Records, second.Records)

	require.Len(t, runs.runs, 2)
	assert.False(t, runs.runs[0].CacheHit)
	assert.True(t, runs.runs[1].CacheHit)
	assert.Equal(t, 1, runs.runs[1].TotalReplacements)
}

func TestProcessNeverReturnsNilRecords(t *testing.T) {
	completer := &fakeCompleter{}
	mem := &memoryCache{entries: map[string]*cache.Entry{
		"documento|Tel [TELEFONO]": {Kind: "documento"},
	}}
	p := newProcessor(completer, nil).WithCache(mem)

	hit, err := p.Process(context.Background(), Request{Text: "Tel 612345678", Anonymize: true})
	require.NoError(t, err)
	assert.True(t, hit.CacheHit)
	assert.NotNil(t, hit.Records)

	miss, err := p.Process(context.Background(), Request{Text: "Pedido para juan@example.com", Anonymize: true})
	require.NoError(t, err)
	assert.False(t, miss.CacheHit)
	require.NotNil(t, miss.Records)
	assert.Empty(t, miss.Records)

	data, err := json.Marshal(mem.entries["documento|Pedido para [EMAIL]"].Records)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestProcessSkipsCacheForRawText(t *testing.T) {
	completer := &fakeCompleter{}
	mem := &memoryCache{entries: map[string]*cache.Entry{}}
	p := newProcessor(completer, nil).WithCache(mem)

	_, err := p.Process(context.Background(), Request{Text: "juan@example.com"})
	require.NoError(t, err)
	assert.Empty(t, mem.entries)
}

func TestProcessUpstreamFailureIsRecorded(t *testing.T) {
	completer := &fakeCompleter{err: llm.ErrUpstream}
	runs := &runLog{}
	events := &eventLog{}
	p := newProcessor(completer, nil).WithHistory(runs).WithEvents(events)

	_, err := p.Process(context.Background(), Request{Text: "hola", Anonymize: true, RequestID: "req-1"})
	assert.ErrorIs(t, err, llm.ErrUpstream)

	require.Len(t, runs.runs, 1)
	assert.NotEmpty(t, runs.runs[0].Error)
	require.Len(t, events.events, 1)
	assert.Equal(t, websocket.EventTypeAnonymization, events.events[0].Type)
	assert.Equal(t, "req-1", events.events[0].RequestID)
	data := events.events[0].Data.(websocket.AnonymizationEvent)
	assert.NotEmpty(t, data.Error)
}

func TestProcessFile(t *testing.T) {
	completer := &fakeCompleter{}
	x := fakeExtractor{result: extract.Result{Text: "Tel 612345678", SourceType: extract.SourcePDF, Warnings: []string{"ocr"}}}
	p := newProcessor(completer, x)

	res, err := p.ProcessFile(context.Background(), "/tmp/upload-123/factura.pdf", Request{Anonymize: true})
	require.NoError(t, err)
	assert.Equal(t, "Tel [TELEFONO]", completer.calls[0].Text)
	require.NotNil(t, res.Extraction)
	assert.Equal(t, extract.SourcePDF, res.Extraction.SourceType)
	assert.Equal(t, []string{"ocr"}, res.Warnings)
}

func TestProcessFileExtractionError(t *testing.T) {
	runs := &runLog{}
	p := newProcessor(&fakeCompleter{}, fakeExtractor{err: extract.ErrUnsupported}).WithHistory(runs)

	_, err := p.ProcessFile(context.Background(), "/tmp/a.docx", Request{})
	assert.True(t, errors.Is(err, extract.ErrUnsupported))
	require.Len(t, runs.runs, 1)
	assert.Equal(t, "a.docx", runs.runs[0].Source)
}
