package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/platform/gcp"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

// TextExtractor turns validated bytes into plain text. Implementations must
// return promptly once ctx is done.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Parser turns extracted text into a candidate course.
type Parser interface {
	Parse(ctx context.Context, text string) (*syllabus.CandidateCourse, error)
}

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DocumentExtractor reads text and DOCX locally and sends PDFs and images to
// OCR. ocr may be nil, in which case those types fail permanently.
type DocumentExtractor struct {
	log *logger.Logger
	ocr gcp.OCR
}

func NewDocumentExtractor(log *logger.Logger, ocr gcp.OCR) *DocumentExtractor {
	return &DocumentExtractor{log: log.With("component", "DocumentExtractor"), ocr: ocr}
}

func (e *DocumentExtractor) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	var (
		text string
		err  error
	)
	switch {
	case strings.HasPrefix(mt, "text/"):
		if !utf8.Valid(data) {
			return "", jobs.Fail(jobs.KindExtractionFailed, "text is not valid UTF-8", nil)
		}
		text = string(data)
	case mt == mimeDOCX:
		text, err = docxText(data)
		if err != nil {
			return "", jobs.Fail(jobs.KindExtractionFailed, "read docx", err)
		}
	case mt == mimePDF || strings.HasPrefix(mt, "image/"):
		text, err = e.ocrText(ctx, data, mt)
		if err != nil {
			return "", err
		}
	default:
		return "", jobs.Fail(jobs.KindExtractionFailed, fmt.Sprintf("no extractor for %q", mimeType), nil)
	}
	text = normalizeLines(text)
	if text == "" {
		return "", jobs.Fail(jobs.KindExtractionFailed, "document contains no text", nil)
	}
	return text, nil
}

func (e *DocumentExtractor) ocrText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if e.ocr == nil {
		return "", jobs.Fail(jobs.KindExtractionFailed, "no OCR backend configured for "+mimeType, nil)
	}
	res, err := e.ocr.ProcessBytes(ctx, data, mimeType)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyOCRError(err)
	}
	if res == nil {
		return "", nil
	}
	e.log.Debug("ocr complete", "processor", res.Processor, "pages", res.Pages, "chars", len(res.Text))
	return res.Text, nil
}

func classifyOCRError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return jobs.Fail(jobs.KindExtractionFailed, "ocr", err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.Internal, codes.DeadlineExceeded:
		return jobs.Retryable(jobs.KindExtractionFailed, "ocr "+st.Code().String(), err)
	default:
		return jobs.Fail(jobs.KindExtractionFailed, "ocr "+st.Code().String(), err)
	}
}

// normalizeLines unifies line endings, trims each line and drops runs of
// blank lines.
func normalizeLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
