package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/doc-sentinel/internal/suppliers"
	"github.com/raaihank/doc-sentinel/internal/websocket"
)

type addValueRequest struct {
	Supplier string `json:"proveedor"`
	Field    string `json:"field"`
	Value    string `json:"value"`
}

type testRequest struct {
	Text            string  `json:"texto"`
	Supplier        *string `json:"proveedor"`
	ApplyHeuristics *bool   `json:"apply_heuristics"`
}

func (s *Server) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{"proveedores": s.store.IDs()})
}

func (s *Server) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	profile, err := s.store.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"proveedor":     id,
		"configuracion": profile,
	})
}

// handlePutSupplier creates or replaces a supplier profile. Unknown fields
// are rejected.
func (s *Server) handlePutSupplier(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var profile suppliers.Profile
	if err := dec.Decode(&profile); err != nil {
		s.writeError(w, r, invalid("invalid supplier profile: "+err.Error()))
		return
	}

	m, err := s.store.Put(r.Context(), id, profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.broadcastSupplierUpdate(r, "put", m)
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"message":       fmt.Sprintf("Configuración para %s guardada exitosamente", id),
		"proveedor":     id,
		"configuracion": m.Profile,
		"persistido":    m.Persisted,
	})
}

func (s *Server) handleAddSupplierValue(w http.ResponseWriter, r *http.Request) {
	var req addValueRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	m, err := s.store.AddValue(r.Context(), req.Supplier, req.Field, req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.broadcastSupplierUpdate(r, "add_value", m)
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"message":    "Dato agregado exitosamente",
		"proveedor":  req.Supplier,
		"field":      req.Field,
		"value":      req.Value,
		"modificado": m.Changed,
		"persistido": m.Persisted,
	})
}

func (s *Server) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, err := s.store.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.broadcastSupplierUpdate(r, "delete", m)
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"message":    fmt.Sprintf("Proveedor %s eliminado exitosamente", id),
		"persistido": m.Persisted,
	})
}

// handleTestAnonymization is a dry run of the engine; nothing is sent to
// the LLM
func (s *Server) handleTestAnonymization(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	heuristics := true
	if req.ApplyHeuristics != nil {
		heuristics = *req.ApplyHeuristics
	}
	supplier := ""
	if req.Supplier != nil {
		supplier = strings.TrimSpace(*req.Supplier)
	}

	res := s.engine.Anonymize(req.Text, supplier, heuristics)
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"texto_original":    req.Text,
		"texto_anonimizado": res.Text,
		"estadisticas":      newStatsView(&res.Stats),
		"proveedor_usado":   req.Supplier,
	})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	groups := s.engine.Patterns()
	byName := make(map[string][]string, len(groups))
	for _, g := range groups {
		byName[g.Name] = g.Patterns
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"patrones_regex": byName,
		"categorias":     groups,
	})
}

// handleRuns lists recent extraction runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeJSON(w, r, http.StatusNotFound, map[string]string{"detail": "Historial desactivado"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, invalid(fmt.Sprintf("invalid limit %q", raw)))
			return
		}
		limit = n
	}

	runs, err := s.runs.Recent(r.Context(), limit, r.URL.Query().Get("proveedor"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.runs.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"runs": runs, "resumen": summary})
}

func (s *Server) broadcastSupplierUpdate(r *http.Request, action string, m suppliers.Mutation) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeSupplierUpdate,
		Timestamp: time.Now(),
		RequestID: getRequestID(r.Context()),
		Data: websocket.SupplierUpdateEvent{
			Action:    action,
			Supplier:  m.Supplier,
			Persisted: m.Persisted,
			Suppliers: s.store.Len(),
		},
	})
}
