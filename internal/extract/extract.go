package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnsupported is returned for file types that cannot be turned into text.
var ErrUnsupported = errors.New("unsupported file type")

// Source types reported in Result.
const (
	SourcePDF         = "pdf"
	SourceSpreadsheet = "spreadsheet"
	SourceText        = "text"
	SourceXML         = "xml"
	SourceImage       = "image"
)

// Config names the external tools and OCR settings.
type Config struct {
	Pdftotext     string
	Pdftoppm      string
	Tesseract     string
	DPI           int
	MaxPages      int // 0 = no limit
	PDFLanguage   string
	ImageLanguage string
}

// Result is the text of one document plus how it was obtained.
type Result struct {
	Text       string        `json:"text"`
	SourceType string        `json:"source_type"`
	Method     string        `json:"method"`
	Pages      int           `json:"pages"`
	Duration   time.Duration `json:"duration"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// Extractor turns supplier documents into plain text.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
}

// New creates an extractor that shells out to the configured tools.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PDFLanguage == "" {
		cfg.PDFLanguage = "spa"
	}
	if cfg.ImageLanguage == "" {
		cfg.ImageLanguage = "spa+eng+deu+cat"
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner replaces the command runner.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// Supported reports whether a file name has an extension Extract handles.
// Files without an extension are sniffed at extraction time and count as
// supported.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".xlsx", ".xlsm", ".csv", ".txt", ".xml", ".png", ".jpg", ".jpeg", ".tiff", "":
		return true
	}
	return false
}

// Extract picks a strategy from the lower-cased file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	ext := strings.ToLower(filepath.Ext(path))
	e.logger.Debug("Extracting document", zap.String("path", path), zap.String("ext", ext))

	var (
		res Result
		err error
	)
	switch ext {
	case ".pdf":
		res, err = e.extractPDF(ctx, path)
	case ".xlsx", ".xlsm":
		res, err = extractSpreadsheet(path)
	case ".xls":
		err = fmt.Errorf("%w: legacy .xls workbooks are not supported, save as .xlsx", ErrUnsupported)
	case ".csv", ".txt":
		res, err = extractPlainText(path)
	case ".xml":
		res, err = extractXML(path)
	case ".png", ".jpg", ".jpeg", ".tiff":
		res, err = e.extractImage(ctx, path)
	case "":
		if looksLikeXML(path) {
			e.logger.Debug("Detected XML by content", zap.String("path", path))
			res, err = extractXML(path)
		} else {
			err = fmt.Errorf("%w: %q", ErrUnsupported, filepath.Base(path))
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}

	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}

	e.logger.Info("Document extracted",
		zap.String("source_type", res.SourceType),
		zap.String("method", res.Method),
		zap.Int("pages", res.Pages),
		zap.Int("chars", len(res.Text)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// looksLikeXML checks whether the first line opens a tag.
func looksLikeXML(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	line = strings.TrimPrefix(strings.ToValidUTF8(line, ""), "\ufeff")
	return strings.HasPrefix(strings.TrimSpace(line), "<")
}

func extractPlainText(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read text file: %w", err)
	}
	return Result{
		Text:       strings.ToValidUTF8(string(data), ""),
		SourceType: SourceText,
		Method:     "read",
		Pages:      1,
	}, nil
}
