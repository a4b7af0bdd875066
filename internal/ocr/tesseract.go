// Package ocr adapts the Tesseract engine to the TextExtractor interface.
package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Config locates the trained model data.
type Config struct {
	TessdataPath string
	Language     string
}

// Tesseract extracts text from image files. A fresh engine client is created
// per call because the underlying handle is not safe for concurrent use.
type Tesseract struct {
	cfg Config
}

// New constructs a Tesseract extractor.
func New(cfg Config) *Tesseract {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Tesseract{cfg: cfg}
}

// ExtractText OCR-scans the image at path and returns the recognized text.
func (t *Tesseract) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if t.cfg.TessdataPath != "" {
		if err := client.SetTessdataPrefix(t.cfg.TessdataPath); err != nil {
			return "", fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(t.cfg.Language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	// Low-resolution screenshots often carry no DPI metadata; assume 70.
	if err := client.SetVariable("user_defined_dpi", "70"); err != nil {
		return "", fmt.Errorf("set dpi: %w", err)
	}
	if err := client.SetImage(path); err != nil {
		return "", fmt.Errorf("set image %s: %w", path, err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("extract text from %s: %w", path, err)
	}
	return text, nil
}
