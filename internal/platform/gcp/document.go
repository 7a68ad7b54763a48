package gcp

import (
	"context"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/yungbote/syllabridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

// OCR turns scanned or layout-heavy documents into plain text.
type OCR interface {
	ProcessBytes(ctx context.Context, data []byte, mimeType string) (*OCRResult, error)
	Close() error
}

type DocumentConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
}

type OCRResult struct {
	Processor string
	Text      string
	Pages     int
}

type documentService struct {
	log       *logger.Logger
	client    *documentai.DocumentProcessorClient
	processor string
}

func NewDocument(ctx context.Context, log *logger.Logger, cfg DocumentConfig) (OCR, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us"
	}
	name := processorName(cfg.ProjectID, location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		return nil, fmt.Errorf("documentai project and processor are required")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	c, err := documentai.NewDocumentProcessorClient(ctx, clientOptions(option.WithEndpoint(endpoint))...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog := log.With("service", "gcp.Document")
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", name)
	return &documentService{log: slog, client: c, processor: name}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// ProcessBytes runs one synchronous OCR request. The caller's deadline bounds
// the RPC; errors keep their gRPC status for retry classification.
func (s *documentService) ProcessBytes(ctx context.Context, data []byte, mimeType string) (*OCRResult, error) {
	ctx = ctxutil.Default(ctx)
	if len(data) == 0 {
		return &OCRResult{Processor: s.processor}, nil
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	resp, err := s.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: s.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return &OCRResult{Processor: s.processor}, nil
	}
	return buildOCRResult(resp.Document, s.processor), nil
}

// buildOCRResult prefers per-page paragraphs and flattens tables to one
// pipe-separated line per row, so date/title rows of schedules stay together.
func buildOCRResult(doc *documentaipb.Document, processor string) *OCRResult {
	out := &OCRResult{Processor: processor, Pages: len(doc.Pages)}
	var b strings.Builder
	for _, p := range doc.Pages {
		if p == nil {
			continue
		}
		for _, para := range p.Paragraphs {
			if para == nil || para.Layout == nil {
				continue
			}
			if t := strings.TrimSpace(textFromAnchor(doc.Text, para.Layout.TextAnchor)); t != "" {
				b.WriteString(t)
				b.WriteString("\n")
			}
		}
		for _, table := range p.Tables {
			if table == nil {
				continue
			}
			rows := append(append([]*documentaipb.Document_Page_Table_TableRow{}, table.HeaderRows...), table.BodyRows...)
			for _, r := range rows {
				cells := tableRowToCells(doc.Text, r)
				if line := strings.Trim(strings.Join(cells, " | "), " |"); line != "" {
					b.WriteString(line)
					b.WriteString("\n")
				}
			}
		}
	}
	out.Text = strings.TrimSpace(b.String())
	if out.Text == "" {
		out.Text = strings.TrimSpace(doc.Text)
	}
	return out
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || len(anchor.TextSegments) == 0 || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start := int(seg.StartIndex)
		end := int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func tableRowToCells(full string, r *documentaipb.Document_Page_Table_TableRow) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		if c == nil || c.Layout == nil {
			out = append(out, "")
			continue
		}
		out = append(out, collapseWhitespace(textFromAnchor(full, c.Layout.TextAnchor)))
	}
	return out
}

func processorName(project, location, processorID, version string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	version = strings.TrimSpace(version)

	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}
