package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// extractPDF uses the embedded text layer and falls back to OCR when the
// layer is missing or blank, as with scanned delivery notes.
func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	text, pages, warns, err := e.pdfToText(ctx, path)
	if err == nil && strings.TrimSpace(text) != "" {
		return Result{Text: text, SourceType: SourcePDF, Method: "pdf-text", Pages: pages, Warnings: warns}, nil
	}
	if err != nil {
		e.logger.Warn("PDF text layer unavailable, falling back to OCR", zap.String("path", path), zap.Error(err))
		warns = append(warns, err.Error())
	}

	text, pages, ocrWarns, err := e.pdfToOCR(ctx, path)
	warns = append(warns, ocrWarns...)
	if err != nil {
		return Result{SourceType: SourcePDF, Warnings: warns}, fmt.Errorf("pdf ocr: %w", err)
	}
	return Result{Text: text, SourceType: SourcePDF, Method: "pdf-ocr", Pages: pages, Warnings: warns}, nil
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (string, int, []string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, nonEmpty(string(errb)), fmt.Errorf("pdftotext: %w", err)
	}
	text := string(out)
	// form feeds separate pages
	pages := 1 + strings.Count(strings.TrimRight(text, "\f"), "\f")
	return text, pages, nil, nil
}

func (e *Extractor) pdfToOCR(ctx context.Context, path string) (string, int, []string, error) {
	tmpDir, err := os.MkdirTemp("", "docsentinel-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("Failed to remove temp dir", zap.String("dir", tmpDir), zap.Error(err))
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", strconv.Itoa(e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", 0, nonEmpty(string(errb)), fmt.Errorf("pdftoppm: %w", err)
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, fmt.Errorf("no pages rendered")
	}

	var (
		pagesText []string
		warns     []string
	)
	for _, img := range matches {
		txt, w, err := e.tesseract(ctx, img, e.cfg.PDFLanguage)
		warns = append(warns, w...)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		pagesText = append(pagesText, txt)
	}
	return strings.Join(pagesText, "\n"), len(matches), warns, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (Result, error) {
	txt, warns, err := e.tesseract(ctx, path, e.cfg.ImageLanguage)
	if err != nil {
		return Result{SourceType: SourceImage, Warnings: warns}, err
	}
	return Result{Text: txt, SourceType: SourceImage, Method: "image-ocr", Pages: 1, Warnings: warns}, nil
}

func (e *Extractor) tesseract(ctx context.Context, path, lang string) (string, []string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", lang)
	if err != nil {
		return "", nonEmpty(string(errb)), fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil, nil
}

func nonEmpty(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return []string{s}
}
