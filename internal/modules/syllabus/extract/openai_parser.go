package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/observability"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
	"github.com/yungbote/syllabridge-backend/internal/platform/openai"
)

const systemPrompt = `You convert course syllabi into JSON for a calendar.
Return one JSON object with keys: title, course_code, instructor, term, identifier, description, meetings, events.
meetings: [{"days": ["MON".."SUN"], "start_time": "HH:MM", "end_time": "HH:MM", "location": ""}] using a 24 hour clock.
events: [{"title": "", "category": "lecture|assignment|exam|quiz|project|holiday|other", "start": "YYYY-MM-DD or RFC 3339", "end": null, "location": "", "description": ""}].
identifier is the registrar reference number (CRN) if printed, otherwise "".
Only include dates that appear in the document. Do not invent events.`

type OpenAIParserConfig struct {
	// MaxInputTokens bounds the syllabus text sent to the model. 0 disables
	// truncation.
	MaxInputTokens int
}

// OpenAIParser asks a chat model for the candidate JSON and validates the
// answer against a schema before trusting it.
type OpenAIParser struct {
	log    *logger.Logger
	client openai.Client
	tokens *openai.TokenCounter
	schema *jsonschema.Schema
	cfg    OpenAIParserConfig
}

func NewOpenAIParser(log *logger.Logger, client openai.Client, tokens *openai.TokenCounter, cfg OpenAIParserConfig) (*OpenAIParser, error) {
	if client == nil {
		return nil, fmt.Errorf("openai client required")
	}
	schema, err := compileCandidateSchema()
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = openai.NewTokenCounter(log)
	}
	return &OpenAIParser{
		log:    log.With("component", "OpenAIParser"),
		client: client,
		tokens: tokens,
		schema: schema,
		cfg:    cfg,
	}, nil
}

func (p *OpenAIParser) Parse(ctx context.Context, text string) (*syllabus.CandidateCourse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, jobs.Fail(jobs.KindExtractionFailed, "no text to parse", nil)
	}
	if p.cfg.MaxInputTokens > 0 {
		var cut bool
		text, cut = p.tokens.Truncate(text, p.cfg.MaxInputTokens)
		if cut {
			p.log.Warn("syllabus text truncated", "max_tokens", p.cfg.MaxInputTokens)
		}
	}

	m := observability.Current()
	res, err := p.client.GenerateJSON(ctx, systemPrompt, text)
	if err != nil {
		m.ObserveLLMRequest(p.client.Model(), "error", 0, 0)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if openai.IsRetryable(err) {
			return nil, jobs.Retryable(jobs.KindExtractionFailed, "ai parse", err)
		}
		return nil, jobs.Fail(jobs.KindExtractionFailed, "ai parse", err)
	}
	model := res.Model
	if model == "" {
		model = p.client.Model()
	}

	raw := []byte(res.Content)
	if err := validateAgainst(p.schema, raw); err != nil {
		m.ObserveLLMRequest(model, "invalid", res.Usage.InputTokens, res.Usage.OutputTokens)
		// Model output varies between calls, so a bad answer is worth another attempt.
		return nil, jobs.Retryable(jobs.KindExtractionFailed, "ai output rejected", err)
	}
	cand, err := decodeCandidate(raw)
	if err != nil {
		m.ObserveLLMRequest(model, "invalid", res.Usage.InputTokens, res.Usage.OutputTokens)
		return nil, jobs.Retryable(jobs.KindExtractionFailed, "ai output rejected", err)
	}
	m.ObserveLLMRequest(model, "ok", res.Usage.InputTokens, res.Usage.OutputTokens)
	p.log.Debug("ai parse complete",
		"model", model,
		"events", len(cand.Events),
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens,
	)
	return cand, nil
}

type wireEvent struct {
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	Start       string  `json:"start"`
	End         *string `json:"end"`
	Location    string  `json:"location"`
	Description string  `json:"description"`
}

type wireCandidate struct {
	Title       string             `json:"title"`
	CourseCode  string             `json:"course_code"`
	Instructor  string             `json:"instructor"`
	Term        string             `json:"term"`
	Identifier  string             `json:"identifier"`
	Description string             `json:"description"`
	Meetings    []syllabus.Meeting `json:"meetings"`
	Events      []wireEvent        `json:"events"`
}

func decodeCandidate(raw []byte) (*syllabus.CandidateCourse, error) {
	var w wireCandidate
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	cand := &syllabus.CandidateCourse{
		Title:       strings.TrimSpace(w.Title),
		CourseCode:  strings.TrimSpace(w.CourseCode),
		Instructor:  strings.TrimSpace(w.Instructor),
		Term:        strings.TrimSpace(w.Term),
		Identifier:  strings.TrimSpace(w.Identifier),
		Description: strings.TrimSpace(w.Description),
		Meetings:    w.Meetings,
		Events:      make([]syllabus.CandidateEvent, 0, len(w.Events)),
	}
	for i, e := range w.Events {
		start, err := parseTimestamp(e.Start)
		if err != nil {
			return nil, fmt.Errorf("event %d start: %w", i, err)
		}
		ev := syllabus.CandidateEvent{
			Title:       strings.TrimSpace(e.Title),
			Category:    syllabus.EventCategory(e.Category),
			Start:       start,
			Location:    strings.TrimSpace(e.Location),
			Description: strings.TrimSpace(e.Description),
		}
		if e.End != nil && strings.TrimSpace(*e.End) != "" {
			end, err := parseTimestamp(*e.End)
			if err != nil {
				return nil, fmt.Errorf("event %d end: %w", i, err)
			}
			ev.End = &end
		}
		cand.Events = append(cand.Events, ev)
	}
	if err := cand.Validate(); err != nil {
		return nil, err
	}
	return cand, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
