package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"triage-assistant/internal/domain"
)

// piiPattern matches dates, record ids, titled names and runs of capitalised words.
var piiPattern = regexp.MustCompile(
	`\b\d{1,2}/\d{1,2}/\d{2,4}\b` +
		`|\b(?:MRN|ID)[:#]?\s*\d+\b` +
		`|\b(?:Mr|Mrs|Ms|Dr)\.?\s+[A-Z][a-z]+\b` +
		`|\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`,
)

// MockClient answers every call locally and deterministically.
// Used when no API key is configured and in tests.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) RunGuard(ctx context.Context, note string) (string, error) {
	masked := piiPattern.ReplaceAllStringFunc(note, func(span string) string {
		return "~~" + span + "~~"
	})
	return masked, nil
}

func (m *MockClient) RunResearcher(ctx context.Context, anonymizedNote string, vitals domain.VitalSample) (domain.ResearchResult, error) {
	return domain.ResearchResult{
		Summary: fmt.Sprintf("Offline literature summary for a presentation with %s.", FormatVitals(vitals)),
		Papers: []domain.Paper{
			{Title: "Evaluation of acute chest pain in the emergency department", URI: "https://pubmed.ncbi.nlm.nih.gov/"},
			{Title: "Early warning scores and vital sign trends", URI: "https://www.nih.gov/"},
		},
	}, nil
}

func (m *MockClient) RunDoctor(ctx context.Context, anonymizedNote string, vitals domain.VitalSample, researchSummary string, scan *domain.Attachment) (domain.DoctorResult, error) {
	visual := "No scan provided"
	if scan != nil {
		visual = fmt.Sprintf("Image received (%s); no automated findings.", scan.MIMEType)
	}

	evidence := []string{}
	for _, sentence := range strings.Split(anonymizedNote, ".") {
		if s := strings.TrimSpace(sentence); s != "" {
			evidence = append(evidence, s)
		}
		if len(evidence) == 3 {
			break
		}
	}

	return domain.DoctorResult{
		Diagnosis: "Undifferentiated presentation pending clinical review",
		TreatmentPlan: []string{
			"Repeat vital signs and continuous monitoring",
			"Order baseline labs and ECG",
			"Escalate to attending physician",
		},
		Rationale: domain.Rationale{TextEvidence: evidence, VisualEvidence: visual},
	}, nil
}

func (m *MockClient) RunPatientAssessment(ctx context.Context, symptoms string, vitals domain.VitalSample) (domain.Assessment, error) {
	level := AlertLevelFor(vitals)
	advice := "Rest, stay hydrated and keep an eye on how you feel."
	if level != domain.AlertNormal {
		advice = "Please contact a doctor soon and describe these symptoms."
	}
	return domain.Assessment{
		Explanation: fmt.Sprintf("Your heart rate is %d bpm and your oxygen is %d%%.", vitals.HeartRate, vitals.SpO2),
		Advice:      advice,
		AlertLevel:  level,
	}, nil
}

// AlertLevelFor applies the same thresholds the companion prompt uses.
func AlertLevelFor(v domain.VitalSample) domain.AlertLevel {
	switch {
	case v.HeartRate > 120 || v.SpO2 < 92:
		return domain.AlertCritical
	case v.HeartRate > 100 || v.SpO2 < 95:
		return domain.AlertAttention
	default:
		return domain.AlertNormal
	}
}

func (m *MockClient) RunCompanion(ctx context.Context, history []domain.ChatMessage, vitals domain.VitalSample, image *domain.Attachment) (string, error) {
	if AlertLevelFor(vitals) == domain.AlertCritical {
		return "Your vitals need attention right now. Please seek immediate medical care.", nil
	}
	reply := fmt.Sprintf("Thanks for the update. Your current vitals are %s. Can you tell me when this started?", FormatVitals(vitals))
	if image != nil {
		reply = "I received your image. " + reply
	}
	return reply, nil
}

func (m *MockClient) RunHealthAssistant(ctx context.Context, history []domain.ChatMessage, lastMessage string) (string, error) {
	return fmt.Sprintf("Here is some general guidance about %q. For anything serious, please consult a doctor.", lastMessage), nil
}
