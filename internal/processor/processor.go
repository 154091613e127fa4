package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/raaihank/doc-sentinel/internal/anonymizer"
	"github.com/raaihank/doc-sentinel/internal/cache"
	"github.com/raaihank/doc-sentinel/internal/extract"
	"github.com/raaihank/doc-sentinel/internal/history"
	"github.com/raaihank/doc-sentinel/internal/llm"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/websocket"
	"go.uber.org/zap"
)

// ErrEmptyDocument is returned when there is no text to send to the model.
var ErrEmptyDocument = errors.New("document has no text")

// Extractor turns a file into text.
type Extractor interface {
	Extract(ctx context.Context, path string) (extract.Result, error)
}

// Completer runs the LLM extraction.
type Completer interface {
	Extract(ctx context.Context, req llm.Request) (llm.Response, error)
	Model() string
}

// ResultCache stores LLM results keyed by redacted text.
type ResultCache interface {
	Key(kind, text string) string
	Get(ctx context.Context, key string) (*cache.Entry, bool)
	Set(ctx context.Context, key string, entry *cache.Entry) error
}

// RunRecorder persists run history.
type RunRecorder interface {
	Record(ctx context.Context, run *history.Run) error
}

// Broadcaster publishes dashboard events.
type Broadcaster interface {
	BroadcastEvent(event websocket.Event)
}

// Request describes one document to process.
type Request struct {
	Text       string
	Supplier   string
	Anonymize  bool
	Heuristics bool
	Kind       llm.Kind
	// Source names the origin for history, e.g. the uploaded file name
	Source    string
	RequestID string
}

// Result is the outcome of one processed document.
type Result struct {
	Records  []json.RawMessage `json:"records"`
	Stats    *anonymizer.Stats `json:"stats,omitempty"`
	CacheHit bool              `json:"cache_hit"`
	Warnings []string          `json:"warnings,omitempty"`
	// Extraction is set by ProcessFile
	Extraction *extract.Result `json:"extraction,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// Processor runs extract -> anonymize -> LLM for one document.
type Processor struct {
	engine    *anonymizer.Engine
	extractor Extractor
	completer Completer
	cache     ResultCache
	history   RunRecorder
	events    Broadcaster
	logger    *logger.Logger
}

// New creates a processor. Cache, history and events are optional.
func New(engine *anonymizer.Engine, extractor Extractor, completer Completer, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{
		engine:    engine,
		extractor: extractor,
		completer: completer,
		logger:    log.WithComponent("processor"),
	}
}

// WithCache enables the LLM result cache.
func (p *Processor) WithCache(c ResultCache) *Processor {
	p.cache = c
	return p
}

// WithHistory enables run history.
func (p *Processor) WithHistory(h RunRecorder) *Processor {
	p.history = h
	return p
}

// WithEvents enables dashboard events.
func (p *Processor) WithEvents(b Broadcaster) *Processor {
	p.events = b
	return p
}

// Engine returns the anonymization engine.
func (p *Processor) Engine() *anonymizer.Engine {
	return p.engine
}

// ProcessFile extracts the text of path and processes it.
func (p *Processor) ProcessFile(ctx context.Context, path string, req Request) (*Result, error) {
	if req.Source == "" {
		req.Source = filepath.Base(path)
	}
	start := time.Now()
	extracted, err := p.extractor.Extract(ctx, path)
	if err != nil {
		p.finish(ctx, req, &Result{}, start, err)
		return nil, fmt.Errorf("extract %s: %w", req.Source, err)
	}
	p.logger.Info("Document text extracted",
		zap.String("request_id", req.RequestID),
		zap.String("source_type", extracted.SourceType),
		zap.String("method", extracted.Method),
		zap.Int("pages", extracted.Pages),
		zap.Int("chars", len(extracted.Text)),
		zap.Duration("duration", extracted.Duration))

	req.Text = extracted.Text
	res, err := p.Process(ctx, req)
	if res != nil {
		res.Extraction = &extracted
		res.Warnings = slices.Concat(extracted.Warnings, res.Warnings)
	}
	return res, err
}

// Process anonymizes the text when requested and runs the LLM extraction.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if req.Kind == "" {
		req.Kind = llm.KindDocument
	}
	res := &Result{Records: []json.RawMessage{}}

	log := p.logger.WithRequestID(req.RequestID).WithSupplier(req.Supplier)
	text := req.Text
	if req.Anonymize {
		redacted := p.engine.Anonymize(text, req.Supplier, req.Heuristics)
		text = redacted.Text
		res.Stats = &redacted.Stats
		log.LogRedaction(req.Supplier, redacted.Stats.TotalReplacements, redacted.Stats.ByType)
	} else {
		log.Warn("Anonymization disabled, raw document text will be sent to the LLM")
	}

	if strings.TrimSpace(text) == "" {
		p.finish(ctx, req, res, start, ErrEmptyDocument)
		return nil, ErrEmptyDocument
	}

	var key string
	if p.cache != nil && req.Anonymize {
		key = p.cache.Key(string(req.Kind), text)
		if entry, ok := p.cache.Get(ctx, key); ok {
			if entry.Records != nil {
				res.Records = entry.Records
			}
			res.Warnings = entry.Warnings
			res.CacheHit = true
			res.Duration = time.Since(start)
			log.Info("Serving extraction from cache", zap.Int("records", len(entry.Records)))
			p.finish(ctx, req, res, start, nil)
			return res, nil
		}
	}

	resp, err := p.completer.Extract(ctx, llm.Request{
		Kind:       req.Kind,
		Text:       text,
		Supplier:   req.Supplier,
		Anonymized: req.Anonymize,
	})
	if err != nil {
		p.finish(ctx, req, res, start, err)
		return nil, err
	}
	if resp.Records != nil {
		res.Records = resp.Records
	}
	res.Warnings = resp.Warnings
	res.Duration = time.Since(start)

	if key != "" {
		entry := &cache.Entry{
			Kind:     string(req.Kind),
			Model:    p.completer.Model(),
			Records:  res.Records,
			Warnings: resp.Warnings,
		}
		if err := p.cache.Set(ctx, key, entry); err != nil {
			log.Warn("Failed to cache extraction result", zap.Error(err))
		}
	}

	log.Info("Document processed",
		zap.String("kind", string(req.Kind)),
		zap.Int("records", len(res.Records)),
		zap.Duration("duration", res.Duration))
	p.finish(ctx, req, res, start, nil)
	return res, nil
}

// finish records history and publishes the dashboard event. Neither may
// fail the request.
func (p *Processor) finish(ctx context.Context, req Request, res *Result, start time.Time, procErr error) {
	elapsed := time.Since(start)
	var total int
	var byType map[string]int
	if res.Stats != nil {
		total = res.Stats.TotalReplacements
		byType = res.Stats.ByType
	}
	errText := ""
	if procErr != nil {
		errText = procErr.Error()
	}

	if p.history != nil {
		run := &history.Run{
			Supplier:          req.Supplier,
			Kind:              string(req.Kind),
			Source:            req.Source,
			Anonymized:        req.Anonymize,
			TotalReplacements: total,
			ByType:            history.Counts(byType),
			Records:           len(res.Records),
			CacheHit:          res.CacheHit,
			Duration:          elapsed,
			Error:             errText,
		}
		if err := p.history.Record(context.WithoutCancel(ctx), run); err != nil {
			p.logger.Warn("Failed to record run history", zap.Error(err))
		}
	}

	if p.events != nil {
		p.events.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeAnonymization,
			Timestamp: time.Now(),
			RequestID: req.RequestID,
			Data: websocket.AnonymizationEvent{
				Supplier:          req.Supplier,
				Kind:              string(req.Kind),
				Source:            req.Source,
				Anonymized:        req.Anonymize,
				TotalReplacements: total,
				ByType:            byType,
				Records:           len(res.Records),
				CacheHit:          res.CacheHit,
				ProcessingMS:      float64(elapsed.Microseconds()) / 1000,
				Error:             errText,
			},
		})
	}
}
