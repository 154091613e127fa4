package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raaihank/doc-sentinel/internal/anonymizer"
	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/extract"
	"github.com/raaihank/doc-sentinel/internal/llm"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/processor"
	"github.com/raaihank/doc-sentinel/internal/suppliers"
	"github.com/raaihank/doc-sentinel/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeCompleter struct {
	err   error
	calls []llm.Request
}

func (f *fakeCompleter) Extract(_ context.Context, req llm.Request) (llm.Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Records: []json.RawMessage{json.RawMessage(`{"referencia":"TOR-8"}`)}}, nil
}

func (f *fakeCompleter) Model() string { return "gpt-4o" }

type testEnv struct {
	handler   http.Handler
	completer *fakeCompleter
	store     *suppliers.Store
	dir       string
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false
	cfg.Anonymization.ApplyHeuristics = false
	if mutate != nil {
		mutate(cfg)
	}

	dir := t.TempDir()
	store := suppliers.NewStore(suppliers.NewFileBackend(filepath.Join(dir, "suppliers.json")), "_", zap.NewNop())
	engine := anonymizer.New(nil, store, zap.NewNop())
	completer := &fakeCompleter{}
	proc := processor.New(engine, extract.New(extract.Config{}, zap.NewNop()), completer, logger.NewNop())

	srv, err := New(cfg, logger.NewNop(), proc, Options{Model: completer.Model()})
	require.NoError(t, err)
	return &testEnv{handler: srv.Handler(), completer: completer, store: store, dir: dir}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, path, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestExtractText(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/extraer", map[string]any{"texto": "Contacto: juan@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	body := decode(t, rec)
	assert.Len(t, body["resultado"], 1)
	stats := body["estadisticas_anonimizacion"].(map[string]any)
	assert.EqualValues(t, 1, stats["total_reemplazos"])
	assert.EqualValues(t, 1, stats["por_tipo"].(map[string]any)["email"])

	require.Len(t, env.completer.calls, 1)
	assert.Equal(t, "Contacto: [EMAIL]", env.completer.calls[0].Text)
}

func TestExtractTextWithoutAnonymization(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/extraer", map[string]any{"texto": "juan@example.com", "anonymize": false})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Nil(t, body["estadisticas_anonimizacion"])
	assert.Equal(t, "juan@example.com", env.completer.calls[0].Text)
}

func TestExtractErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/extraer", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "invalid JSON body")

	rec = env.do(t, http.MethodPost, "/extraer", map[string]any{"texto": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.completer.err = llm.ErrUpstream
	rec = env.do(t, http.MethodPost, "/extraer", map[string]any{"texto": "hola"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestExtractFileUpload(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	env := newTestEnv(t, nil)

	rec := env.upload(t, "/extraer-archivo", "pedido.csv", "ref;tel\nA1;612345678\n", map[string]string{"proveedor": "acme"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, env.completer.calls, 1)
	call := env.completer.calls[0]
	assert.Equal(t, llm.KindDocument, call.Kind)
	assert.Equal(t, "acme", call.Supplier)
	assert.Contains(t, call.Text, "[TELEFONO]")

	leftovers, err := filepath.Glob(filepath.Join(tmp, "docsentinel-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestExtractSalesDataIgnoresSupplier(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.upload(t, "/extraer-dades-venda", "ventas.txt", "total 10", map[string]string{"proveedor": "acme", "anonymize": "false"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	call := env.completer.calls[0]
	assert.Equal(t, llm.KindSalesData, call.Kind)
	assert.Empty(t, call.Supplier)
	assert.False(t, call.Anonymized)
}

func TestUploadErrors(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.MaxUploadSize = 1024 })

	rec := env.upload(t, "/extraer-archivo", "contrato.docx", "x", nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = env.upload(t, "/extraer-archivo", "grande.txt", strings.Repeat("x", 4096), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = env.upload(t, "/extraer-archivo", "a.txt", "x", map[string]string{"anonymize": "quizas"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/extraer-archivo", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminSupplierLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/admin/anonymization/proveedor/acme", map[string]any{
		"nombres_empresa": []string{"Acme Corp"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["persistido"])
	assert.Equal(t, "acme", body["proveedor"])

	rec = env.do(t, http.MethodPost, "/admin/anonymization/proveedor/agregar-dato", map[string]any{
		"proveedor": "acme", "field": "telefonos", "value": "555.12.34",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["modificado"])

	rec = env.do(t, http.MethodGet, "/admin/anonymization/proveedores", nil)
	assert.Equal(t, []any{"acme"}, decode(t, rec)["proveedores"])

	rec = env.do(t, http.MethodGet, "/admin/anonymization/proveedor/acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode(t, rec)["configuracion"].(map[string]any)
	assert.Equal(t, []any{"Acme Corp"}, cfg["nombres_empresa"])
	assert.Equal(t, []any{"555.12.34"}, cfg["telefonos"])

	_, err := os.Stat(filepath.Join(env.dir, "suppliers.json"))
	require.NoError(t, err)

	rec = env.do(t, http.MethodDelete, "/admin/anonymization/proveedor/acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.store.Len())
}

func TestAdminSupplierErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/admin/anonymization/proveedor/nadie", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Proveedor no encontrado", decode(t, rec)["detail"])

	rec = env.do(t, http.MethodDelete, "/admin/anonymization/proveedor/nadie", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/anonymization/proveedor/agregar-dato", map[string]any{
		"proveedor": "acme", "field": "fax", "value": "1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/anonymization/proveedor/acme", map[string]any{"faxes": []string{"1"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.store.Len())
}

func TestAdminDryRun(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.store.Put(context.Background(), "acme", suppliers.Profile{CompanyNames: []string{"Acme Corp"}})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/admin/anonymization/test", map[string]any{
		"texto":            "Factura de ACME CORP por 100,00€",
		"proveedor":        "acme",
		"apply_heuristics": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Factura de [NOMBRES_EMPRESA_PROVEEDOR] por [PRECIO]", body["texto_anonimizado"])
	assert.Equal(t, "acme", body["proveedor_usado"])
	stats := body["estadisticas"].(map[string]any)
	assert.EqualValues(t, 2, stats["total_reemplazos"])
	assert.Empty(t, env.completer.calls)
}

func TestAdminPatterns(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/admin/anonymization/patrones", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	patterns := body["patrones_regex"].(map[string]any)
	assert.Contains(t, patterns, "email")
	assert.NotEmpty(t, body["categorias"])
}

func TestRunsDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/admin/runs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServiceInfo(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["endpoints"], "extraer-archivo")

	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/info", nil)
	info := decode(t, rec)
	assert.Equal(t, "gpt-4o", info["model"])
	assert.Contains(t, info["supplier_backend"], "file:")
}

func TestDashboardRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	cfg := config.GetDefaults()
	hub := websocket.NewHub(&websocket.HubConfig{}, zap.NewNop())
	proc := processor.New(anonymizer.New(nil, env.store, nil), extract.New(extract.Config{}, nil), env.completer, logger.NewNop())
	srv, err := New(cfg, logger.NewNop(), proc, Options{Hub: hub})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")

	req = httptest.NewRequest(http.MethodGet, "/info", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Contains(t, rr.Body.String(), `"websocket"`)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.RequestsPerMin = 1
		c.RateLimit.Burst = 1
	})

	rec := env.do(t, http.MethodPost, "/extraer", map[string]any{"texto": "hola"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/extraer", map[string]any{"texto": "hola"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// admin routes are not limited
	rec = env.do(t, http.MethodGet, "/admin/anonymization/proveedores", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	now := time.Now()
	assert.True(t, rl.allowAt("10.0.0.1", now))
	assert.False(t, rl.allowAt("10.0.0.1", now))
	assert.True(t, rl.allowAt("10.0.0.2", now))
	assert.True(t, rl.allowAt("10.0.0.1", now.Add(time.Second)))

	assert.Equal(t, 0, rl.CleanupOldBuckets(time.Hour))
	assert.Equal(t, 2, rl.CleanupOldBuckets(-time.Hour))
}

// brokenWriter accepts headers but fails every body write
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteJSONLogsBodyFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := &Server{logger: &logger.Logger{Logger: zap.New(core)}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.writeJSON(brokenWriter{rec}, req, http.StatusOK, map[string]string{"status": "healthy"})

	assert.Equal(t, http.StatusOK, rec.Code)
	entries := logs.FilterMessage("Failed to write response body").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "connection reset", entries[0].ContextMap()["error"])
}
