package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/raaihank/doc-sentinel/internal/anonymizer"
	"github.com/raaihank/doc-sentinel/internal/extract"
	"github.com/raaihank/doc-sentinel/internal/llm"
	"github.com/raaihank/doc-sentinel/internal/processor"
	"go.uber.org/zap"
)

const maxMemoryUpload = 32 << 20

type extractRequest struct {
	Text      string  `json:"texto"`
	Supplier  *string `json:"proveedor"`
	Anonymize *bool   `json:"anonymize"`
}

type statsView struct {
	Total  int            `json:"total_reemplazos"`
	ByType map[string]int `json:"por_tipo"`
}

type extractResponse struct {
	Result   []json.RawMessage `json:"resultado"`
	Stats    *statsView        `json:"estadisticas_anonimizacion"`
	CacheHit bool              `json:"cache"`
	Warnings []string          `json:"advertencias,omitempty"`
}

func newStatsView(stats *anonymizer.Stats) *statsView {
	if stats == nil {
		return nil
	}
	byType := stats.ByType
	if byType == nil {
		byType = map[string]int{}
	}
	return &statsView{Total: stats.TotalReplacements, ByType: byType}
}

func newExtractResponse(res *processor.Result) extractResponse {
	records := res.Records
	if records == nil {
		records = []json.RawMessage{}
	}
	return extractResponse{
		Result:   records,
		Stats:    newStatsView(res.Stats),
		CacheHit: res.CacheHit,
		Warnings: res.Warnings,
	}
}

// handleExtract runs the pipeline on text posted as JSON
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	anonymize := true
	if req.Anonymize != nil {
		anonymize = *req.Anonymize
	}
	supplier := ""
	if req.Supplier != nil {
		supplier = strings.TrimSpace(*req.Supplier)
	}

	res, err := s.processor.Process(r.Context(), processor.Request{
		Text:       req.Text,
		Supplier:   supplier,
		Anonymize:  anonymize,
		Heuristics: s.config.Anonymization.ApplyHeuristics,
		Kind:       llm.KindDocument,
		Source:     "texto",
		RequestID:  getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, newExtractResponse(res))
}

// handleExtractFile runs the pipeline on an uploaded supplier document
func (s *Server) handleExtractFile(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, llm.KindDocument, true)
}

// handleExtractSalesData runs the sales-data prompt on an uploaded file.
// Sales data is not tied to one supplier.
func (s *Server) handleExtractSalesData(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, llm.KindSalesData, false)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, kind llm.Kind, withSupplier bool) {
	path, name, cleanup, err := s.receiveUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer cleanup()

	anonymize, err := formBool(r, "anonymize", true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	supplier := ""
	if withSupplier {
		supplier = strings.TrimSpace(r.FormValue("proveedor"))
	}

	s.logger.WithRequestID(getRequestID(r.Context())).Info("Processing uploaded file",
		zap.String("file", name),
		zap.String("kind", string(kind)),
		zap.String("supplier", supplier),
		zap.Bool("anonymize", anonymize))

	res, err := s.processor.ProcessFile(r.Context(), path, processor.Request{
		Supplier:   supplier,
		Anonymize:  anonymize,
		Heuristics: s.config.Anonymization.ApplyHeuristics,
		Kind:       kind,
		Source:     name,
		RequestID:  getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, newExtractResponse(res))
}

// receiveUpload stores the "file" form field in a temp file. The returned
// cleanup removes it and must always be called on success.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (string, string, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadSize)
	if err := r.ParseMultipartForm(maxMemoryUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", "", nil, err
		}
		return "", "", nil, invalid("invalid multipart form: " + err.Error())
	}
	removeForm := func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		removeForm()
		return "", "", nil, invalid("missing file field")
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if !extract.Supported(name) {
		removeForm()
		return "", "", nil, fmt.Errorf("%w: %q", extract.ErrUnsupported, ext)
	}

	tmp, err := os.CreateTemp("", "docsentinel-*"+ext)
	if err != nil {
		removeForm()
		return "", "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		os.Remove(tmp.Name())
		removeForm()
	}

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		cleanup()
		return "", "", nil, fmt.Errorf("store upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("store upload: %w", err)
	}
	return tmp.Name(), name, cleanup, nil
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadSize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return invalid("invalid JSON body: " + err.Error())
	}
	return nil
}

func formBool(r *http.Request, key string, def bool) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalid(fmt.Sprintf("invalid %s value %q", key, raw))
	}
	return v, nil
}
