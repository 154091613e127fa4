package anonymizer

import (
	"strings"

	"github.com/raaihank/doc-sentinel/internal/suppliers"
	"go.uber.org/zap"
)

// Result is the output of one redaction run. The caller owns it.
type Result struct {
	Text  string `json:"text"`
	Stats Stats  `json:"stats"`
}

// Engine runs the pattern, supplier and heuristic passes. It holds no
// per-call state, so one instance serves concurrent callers.
type Engine struct {
	library    *Library
	suppliers  *suppliers.Store
	heuristics LineClassifier
	logger     *zap.Logger
}

// New creates an engine. A nil library uses the default detectors and a
// nil store disables the supplier pass.
func New(library *Library, store *suppliers.Store, logger *zap.Logger) *Engine {
	if library == nil {
		library = DefaultLibrary()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		library:   library,
		suppliers: store,
		logger:    logger,
	}
}

// Anonymize redacts text. With a supplier id only that supplier's rules
// apply; without one every non-reserved supplier's rules apply in turn. A
// known supplier with anonymization turned off gets its text back
// untouched.
func (e *Engine) Anonymize(text, supplier string, applyHeuristics bool) Result {
	stats := NewStats()
	if strings.TrimSpace(text) == "" {
		return Result{Text: text, Stats: stats.Snapshot()}
	}

	var scoped *suppliers.Ruleset
	if supplier != "" && e.suppliers != nil {
		if rs, ok := e.suppliers.Rules(supplier); ok {
			if !rs.Enabled() {
				e.logger.Info("Anonymization disabled for supplier", zap.String("supplier", supplier))
				return Result{Text: text, Stats: stats.Snapshot()}
			}
			scoped = rs
		}
	}

	out := e.library.Apply(text, stats)

	switch {
	case scoped != nil:
		out = scoped.Apply(out, stats)
	case supplier == "" && e.suppliers != nil:
		out = e.suppliers.ApplyAll(out, stats)
	}

	if applyHeuristics {
		out = e.heuristics.Apply(out, stats)
	}

	e.logger.Debug("Anonymization completed",
		zap.String("supplier", supplier),
		zap.Int("total_replacements", stats.TotalReplacements),
		zap.Any("by_type", stats.ByType))

	return Result{Text: out, Stats: stats.Snapshot()}
}

// Patterns describes the active detector groups.
func (e *Engine) Patterns() []GroupInfo {
	return e.library.Groups()
}

// Suppliers returns the rule store, which may be nil.
func (e *Engine) Suppliers() *suppliers.Store {
	return e.suppliers
}
