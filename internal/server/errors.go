package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/raaihank/doc-sentinel/internal/extract"
	"github.com/raaihank/doc-sentinel/internal/llm"
	"github.com/raaihank/doc-sentinel/internal/processor"
	"github.com/raaihank/doc-sentinel/internal/suppliers"
	"go.uber.org/zap"
)

// errBadRequest marks client input errors raised by the handlers
var errBadRequest = errors.New("bad request")

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }
func (e badRequest) Unwrap() error { return errBadRequest }

func invalid(msg string) error { return badRequest{msg: msg} }

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, suppliers.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, suppliers.ErrUnknownField),
		errors.Is(err, suppliers.ErrBlankValue),
		errors.Is(err, suppliers.ErrBlankID),
		errors.Is(err, processor.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, extract.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, llm.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// detailFor returns the message shown to the client
func detailFor(err error, status int) string {
	switch {
	case errors.Is(err, suppliers.ErrNotFound):
		return "Proveedor no encontrado"
	case status == http.StatusRequestEntityTooLarge:
		return "Archivo demasiado grande"
	default:
		return err.Error()
	}
}

// writeJSON sends v with status. The header is already out when encoding
// fails, so the failure is only logged.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Debug("Failed to write response body",
			zap.Int("status_code", status),
			zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := s.logger.WithRequestID(getRequestID(r.Context()))
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.Int("status_code", status), zap.Error(err))
	} else {
		log.Warn("Request rejected", zap.Int("status_code", status), zap.Error(err))
	}
	s.writeJSON(w, r, status, map[string]string{"detail": detailFor(err, status)})
}
