package agent

import (
	"context"
	"errors"

	"triage-assistant/internal/domain"
)

// ErrBadResponse covers every reply the model gave that could not be used:
// empty text, invalid JSON or missing required fields.
var ErrBadResponse = errors.New("model returned an unusable response")

// Client is the full remote model surface used by the triage and chat services.
type Client interface {
	// RunGuard returns the note with every PII span wrapped in ~~markers~~.
	RunGuard(ctx context.Context, note string) (string, error)
	RunResearcher(ctx context.Context, anonymizedNote string, vitals domain.VitalSample) (domain.ResearchResult, error)
	RunDoctor(ctx context.Context, anonymizedNote string, vitals domain.VitalSample, researchSummary string, scan *domain.Attachment) (domain.DoctorResult, error)
	RunPatientAssessment(ctx context.Context, symptoms string, vitals domain.VitalSample) (domain.Assessment, error)
	RunCompanion(ctx context.Context, history []domain.ChatMessage, vitals domain.VitalSample, image *domain.Attachment) (string, error)
	RunHealthAssistant(ctx context.Context, history []domain.ChatMessage, lastMessage string) (string, error)
}
