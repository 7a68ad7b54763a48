package validation

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"unicode/utf8"

	"golang.org/x/image/tiff"
)

func checkStructure(kind Kind, data []byte, cfg Config) error {
	switch kind {
	case KindPDF:
		return checkPDF(data)
	case KindDOCX:
		return checkDOCX(data, cfg)
	case KindText:
		return checkText(data)
	case KindPNG, KindJPEG:
		cfgImg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("image header: %w", err)
		}
		return checkDims(cfgImg)
	case KindTIFF:
		cfgImg, err := tiff.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("tiff header: %w", err)
		}
		return checkDims(cfgImg)
	default:
		return fmt.Errorf("no structural check for %s", kind)
	}
}

func checkPDF(data []byte) error {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return errors.New("missing %PDF- header")
	}
	tail := data
	if len(tail) > 1024 {
		tail = tail[len(tail)-1024:]
	}
	if !bytes.Contains(tail, []byte("%%EOF")) {
		return errors.New("missing %%EOF trailer")
	}
	return nil
}

func checkDOCX(data []byte, cfg Config) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("zip: %w", err)
	}
	if len(zr.File) > cfg.MaxZipEntries {
		return fmt.Errorf("zip has %d entries", len(zr.File))
	}
	hasDocument := false
	var total uint64
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			hasDocument = true
		}
		total += f.UncompressedSize64
	}
	if !hasDocument {
		return errors.New("word/document.xml missing")
	}
	if ratio := float64(total) / float64(len(data)); ratio > cfg.MaxZipRatio {
		return fmt.Errorf("compression ratio %.0f exceeds limit", ratio)
	}
	return nil
}

func checkText(data []byte) error {
	if bytes.IndexByte(data, 0) >= 0 {
		return errors.New("text contains NUL bytes")
	}
	if !utf8.Valid(data) {
		return errors.New("text is not valid UTF-8")
	}
	return nil
}

func checkDims(c image.Config) error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.New("image has no dimensions")
	}
	if int64(c.Width)*int64(c.Height) > 200_000_000 {
		return errors.New("image dimensions too large")
	}
	return nil
}
