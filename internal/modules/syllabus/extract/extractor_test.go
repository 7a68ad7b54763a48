package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/platform/gcp"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

type fakeOCR struct {
	text string
	err  error
	mime string
}

func (f *fakeOCR) ProcessBytes(ctx context.Context, data []byte, mimeType string) (*gcp.OCRResult, error) {
	f.mime = mimeType
	if f.err != nil {
		return nil, f.err
	}
	return &gcp.OCRResult{Processor: "test", Text: f.text, Pages: 1}, nil
}

func (f *fakeOCR) Close() error { return nil }

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"[Content_Types].xml": `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/document.xml":   body.String(),
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractPlainText(t *testing.T) {
	e := NewDocumentExtractor(logger.Nop(), nil)
	got, err := e.ExtractText(context.Background(), []byte("CS 101\r\n\r\n\r\n  Instructor:   Ada  \r\n"), "text/plain; charset=utf-8")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "CS 101\n\nInstructor: Ada" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractDOCXKeepsParagraphs(t *testing.T) {
	e := NewDocumentExtractor(logger.Nop(), nil)
	data := buildDOCX(t, "CS 101 Intro", "Instructor: Ada Lovelace", "2024-09-10: Quiz 1")
	got, err := e.ExtractText(context.Background(), data, mimeDOCX)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	lines := strings.Split(got, "\n")
	if len(lines) != 3 || lines[2] != "2024-09-10: Quiz 1" {
		t.Fatalf("lines = %q", lines)
	}
}

func TestExtractPDFWithoutOCRFailsPermanently(t *testing.T) {
	e := NewDocumentExtractor(logger.Nop(), nil)
	_, err := e.ExtractText(context.Background(), []byte("%PDF-1.4"), mimePDF)
	f := jobs.AsFailure(err)
	if f == nil || f.Kind != jobs.KindExtractionFailed || f.Retryable {
		t.Fatalf("want permanent EXTRACTION_FAILED, got %#v", err)
	}
}

func TestExtractOCR(t *testing.T) {
	ocr := &fakeOCR{text: "Scanned Syllabus\nMWF 10:00-10:50"}
	e := NewDocumentExtractor(logger.Nop(), ocr)
	got, err := e.ExtractText(context.Background(), []byte("png bytes"), "image/png")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if ocr.mime != "image/png" || !strings.HasPrefix(got, "Scanned Syllabus") {
		t.Fatalf("mime=%q text=%q", ocr.mime, got)
	}
}

func TestOCRErrorClassification(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{status.Error(codes.Unavailable, "down"), true},
		{status.Error(codes.ResourceExhausted, "quota"), true},
		{status.Error(codes.InvalidArgument, "bad pdf"), false},
		{errors.New("boom"), false},
	}
	for _, tc := range cases {
		e := NewDocumentExtractor(logger.Nop(), &fakeOCR{err: tc.err})
		_, err := e.ExtractText(context.Background(), []byte("%PDF"), mimePDF)
		if got := jobs.IsRetryable(err); got != tc.retryable {
			t.Fatalf("%v: retryable=%v, want %v", tc.err, got, tc.retryable)
		}
	}
}

func TestOCRDeadlinePassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewDocumentExtractor(logger.Nop(), &fakeOCR{err: status.Error(codes.Canceled, "ctx")})
	_, err := e.ExtractText(ctx, []byte("%PDF"), mimePDF)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestExtractEmptyText(t *testing.T) {
	e := NewDocumentExtractor(logger.Nop(), nil)
	_, err := e.ExtractText(context.Background(), []byte("   \n\n "), "text/plain")
	if f := jobs.AsFailure(err); f == nil || f.Kind != jobs.KindExtractionFailed {
		t.Fatalf("want EXTRACTION_FAILED, got %v", err)
	}
}
