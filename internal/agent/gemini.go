package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"triage-assistant/internal/domain"
)

const (
	defaultCompanionReply = "I am processing your data. Please wait a moment."
	defaultAssistantReply = "I'm having trouble connecting right now."
	defaultResearchReply  = "No specific research summary generated."
)

var doctorSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"diagnosis": {Type: genai.TypeString},
		"treatmentPlan": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"xaiRationale": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"textEvidence": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
				"visualEvidence": {Type: genai.TypeString},
			},
			Required: []string{"textEvidence", "visualEvidence"},
		},
	},
	Required: []string{"diagnosis", "treatmentPlan", "xaiRationale"},
}

var assessmentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"explanation": {Type: genai.TypeString},
		"advice":      {Type: genai.TypeString},
		"alertLevel": {
			Type: genai.TypeString,
			Enum: []string{string(domain.AlertNormal), string(domain.AlertAttention), string(domain.AlertCritical)},
		},
	},
	Required: []string{"explanation", "advice", "alertLevel"},
}

// GeminiClient calls the Gemini API once per operation. There are no
// retries; callers decide what a failure means.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key must be set")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiClient{client: client, modelName: modelName}, nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string, image *domain.Attachment, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(image.Data, image.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	res, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	return res, nil
}

func (c *GeminiClient) RunGuard(ctx context.Context, note string) (string, error) {
	res, err := c.generate(ctx, BuildGuardPrompt(note), nil, nil)
	if err != nil {
		return "", err
	}
	masked := res.Text()
	if masked == "" {
		return "", fmt.Errorf("%w: guard returned empty text", ErrBadResponse)
	}
	return masked, nil
}

func (c *GeminiClient) RunResearcher(ctx context.Context, anonymizedNote string, vitals domain.VitalSample) (domain.ResearchResult, error) {
	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	res, err := c.generate(ctx, BuildResearcherPrompt(anonymizedNote, vitals), nil, cfg)
	if err != nil {
		return domain.ResearchResult{}, err
	}

	summary := res.Text()
	if summary == "" {
		summary = defaultResearchReply
	}

	var chunks []*genai.GroundingChunk
	if len(res.Candidates) > 0 && res.Candidates[0].GroundingMetadata != nil {
		chunks = res.Candidates[0].GroundingMetadata.GroundingChunks
	}

	return domain.ResearchResult{
		Summary: summary,
		Papers:  papersFromChunks(chunks),
	}, nil
}

// papersFromChunks keeps the web sources in the order the model returned them.
func papersFromChunks(chunks []*genai.GroundingChunk) []domain.Paper {
	papers := []domain.Paper{}
	for _, ch := range chunks {
		if ch == nil || ch.Web == nil {
			continue
		}
		papers = append(papers, domain.Paper{Title: ch.Web.Title, URI: ch.Web.URI})
	}
	return papers
}

func (c *GeminiClient) RunDoctor(ctx context.Context, anonymizedNote string, vitals domain.VitalSample, researchSummary string, scan *domain.Attachment) (domain.DoctorResult, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   doctorSchema,
	}
	res, err := c.generate(ctx, BuildDoctorPrompt(anonymizedNote, vitals, researchSummary), scan, cfg)
	if err != nil {
		return domain.DoctorResult{}, err
	}
	return parseDoctor(res.Text())
}

func (c *GeminiClient) RunPatientAssessment(ctx context.Context, symptoms string, vitals domain.VitalSample) (domain.Assessment, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   assessmentSchema,
	}
	res, err := c.generate(ctx, BuildAssessmentPrompt(symptoms, vitals), nil, cfg)
	if err != nil {
		return domain.Assessment{}, err
	}
	return parseAssessment(res.Text())
}

func (c *GeminiClient) RunCompanion(ctx context.Context, history []domain.ChatMessage, vitals domain.VitalSample, image *domain.Attachment) (string, error) {
	res, err := c.generate(ctx, BuildCompanionPrompt(history, vitals), image, nil)
	if err != nil {
		return "", err
	}
	if text := res.Text(); text != "" {
		return text, nil
	}
	return defaultCompanionReply, nil
}

func (c *GeminiClient) RunHealthAssistant(ctx context.Context, history []domain.ChatMessage, lastMessage string) (string, error) {
	res, err := c.generate(ctx, BuildAssistantPrompt(history, lastMessage), nil, nil)
	if err != nil {
		return "", err
	}
	if text := res.Text(); text != "" {
		return text, nil
	}
	return defaultAssistantReply, nil
}

func decodeJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty body", ErrBadResponse)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

func parseDoctor(text string) (domain.DoctorResult, error) {
	var out domain.DoctorResult
	if err := decodeJSON(text, &out); err != nil {
		return domain.DoctorResult{}, err
	}
	if out.Diagnosis == "" {
		return domain.DoctorResult{}, fmt.Errorf("%w: missing diagnosis", ErrBadResponse)
	}
	if out.TreatmentPlan == nil {
		out.TreatmentPlan = []string{}
	}
	if out.Rationale.TextEvidence == nil {
		out.Rationale.TextEvidence = []string{}
	}
	return out, nil
}

func parseAssessment(text string) (domain.Assessment, error) {
	var out domain.Assessment
	if err := decodeJSON(text, &out); err != nil {
		return domain.Assessment{}, err
	}
	switch out.AlertLevel {
	case domain.AlertNormal, domain.AlertAttention, domain.AlertCritical:
		return out, nil
	default:
		return domain.Assessment{}, fmt.Errorf("%w: unknown alert level %q", ErrBadResponse, out.AlertLevel)
	}
}
