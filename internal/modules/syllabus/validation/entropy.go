package validation

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"math"
)

// ShannonEntropy returns the entropy of data in bits per byte (0..8).
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	n := float64(len(data))
	h := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

var (
	pdfStream    = []byte("stream")
	pdfEndStream = []byte("endstream")
)

// entropySample picks the bytes whose entropy is meaningful for kind.
// Containers compress their payloads, so measuring the raw buffer would
// flag any document with an embedded image. PDFs are measured without their
// stream bodies and DOCX files over the inflated main document part.
func entropySample(kind Kind, data []byte, cfg Config) ([]byte, error) {
	switch kind {
	case KindPDF:
		return pdfSkeleton(data), nil
	case KindDOCX:
		return docxDocumentPart(data, cfg)
	default:
		return data, nil
	}
}

// pdfSkeleton drops everything between a "stream" keyword and its
// "endstream". An unterminated stream keeps its bytes.
func pdfSkeleton(data []byte) []byte {
	out := make([]byte, 0, len(data)/4)
	rest := data
	for {
		i := bytes.Index(rest, pdfStream)
		if i < 0 {
			return append(out, rest...)
		}
		end := i + len(pdfStream)
		isKeyword := end < len(rest) && (rest[end] == '\r' || rest[end] == '\n') &&
			!(i >= 3 && string(rest[i-3:i]) == "end")
		out = append(out, rest[:end]...)
		rest = rest[end:]
		if !isKeyword {
			continue
		}
		j := bytes.Index(rest, pdfEndStream)
		if j < 0 {
			return append(out, rest...)
		}
		rest = rest[j:]
	}
}

func docxDocumentPart(data []byte, cfg Config) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		limit := int64(float64(len(data)) * cfg.MaxZipRatio)
		return io.ReadAll(io.LimitReader(rc, limit))
	}
	return nil, errors.New("word/document.xml missing")
}
