package gcp

import (
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
)

func anchor(start, end int64) *documentaipb.Document_TextAnchor {
	return &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: start, EndIndex: end}},
	}
}

func TestProcessorName(t *testing.T) {
	if got := processorName("p", "us", "abc", ""); got != "projects/p/locations/us/processors/abc" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := processorName("p", "eu", "abc", "v2"); got != "projects/p/locations/eu/processors/abc/processorVersions/v2" {
		t.Fatalf("unexpected versioned name %q", got)
	}
	if got := processorName("", "us", "abc", ""); got != "" {
		t.Fatalf("missing project must yield empty name, got %q", got)
	}
}

func TestBuildOCRResultFlattensTables(t *testing.T) {
	full := "CS 101 Syllabus\n2024-09-10Quiz 1"
	doc := &documentaipb.Document{
		Text: full,
		Pages: []*documentaipb.Document_Page{{
			PageNumber: 1,
			Paragraphs: []*documentaipb.Document_Page_Paragraph{
				{Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(0, 15)}},
			},
			Tables: []*documentaipb.Document_Page_Table{{
				BodyRows: []*documentaipb.Document_Page_Table_TableRow{{
					Cells: []*documentaipb.Document_Page_Table_TableCell{
						{Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(16, 26)}},
						{Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(26, 32)}},
					},
				}},
			}},
		}},
	}
	res := buildOCRResult(doc, "proc")
	want := "CS 101 Syllabus\n2024-09-10 | Quiz 1"
	if res.Text != want {
		t.Fatalf("got %q, want %q", res.Text, want)
	}
	if res.Pages != 1 {
		t.Fatalf("expected 1 page, got %d", res.Pages)
	}
}

func TestBuildOCRResultFallsBackToFullText(t *testing.T) {
	res := buildOCRResult(&documentaipb.Document{Text: "  plain text only  "}, "proc")
	if res.Text != "plain text only" {
		t.Fatalf("got %q", res.Text)
	}
}
