package agent

import (
	"fmt"
	"strings"

	"triage-assistant/internal/domain"
)

const guardPrompt = `
Role: You are a medical data privacy officer.
Task: Identify personally identifiable information (PII) in the note below: names, dates of birth, exact dates, addresses, phone numbers and record IDs.
Output: Return the EXACT input text with every PII span wrapped in double tildes, like ~~Jane Roe~~. Do not change any other characters. Do not write [REDACTED].

Note: %q
`

const researcherPrompt = `
You are a medical research agent. You do not invent sources.
Use the search tool and restrict queries to site:pubmed.ncbi.nlm.nih.gov or site:nih.gov.
Return three relevant papers with a title and a short summary each. Do not include URLs in the text.

Context: patient vitals %s.
Symptoms and notes: %q
`

const doctorPrompt = `
Role: You are a senior attending physician who explains its reasoning.

Task: Using the inputs, produce
1. a final diagnosis,
2. an ordered treatment plan,
3. a rationale: textEvidence lists the phrases from the note you weighted most; visualEvidence describes findings in the attached image, or "No scan provided" if there is none.

Vitals: %s
Clinical note: %q
Research findings: %q
`

const assessmentPrompt = `
Role: You are a kind home health assistant speaking directly to the patient.

Patient vitals: %s
Patient description: %q

Explain the vitals in plain language, give comforting advice for the symptoms, and set alertLevel to normal, attention or critical.
Be warm and clear about when a doctor is needed. Address the patient as "you".
`

const companionPrompt = `
Role: You are a medical assistant: professional, efficient and empathetic.

Real-time vitals: %s

Conversation so far:
%s

Gather triage information and give guidance. Keep it short.
If an image is attached, read it in the context of the symptoms.
If HR > 120 or SpO2 < 92, advise immediate medical attention.

Reply as "Medical Assistant":
`

const assistantPrompt = `
Role: You are a personal health assistant.

Conversation so far:
%s
User: %s

Answer from general medical knowledge, concisely. Advise seeing a doctor for anything serious.

Assistant:
`

// FormatVitals renders a sample the way every prompt expects it.
func FormatVitals(v domain.VitalSample) string {
	return fmt.Sprintf("HR: %d, BP: %d/%d, SpO2: %d%%", v.HeartRate, v.BPSystolic, v.BPDiastolic, v.SpO2)
}

// formatTranscript labels each turn with the given speaker names.
func formatTranscript(history []domain.ChatMessage, userLabel, aiLabel string) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		label := aiLabel
		if m.Role == domain.RoleUser {
			label = userLabel
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}

func BuildGuardPrompt(note string) string {
	return fmt.Sprintf(guardPrompt, note)
}

func BuildResearcherPrompt(anonymizedNote string, vitals domain.VitalSample) string {
	return fmt.Sprintf(researcherPrompt, FormatVitals(vitals), anonymizedNote)
}

func BuildDoctorPrompt(anonymizedNote string, vitals domain.VitalSample, researchSummary string) string {
	return fmt.Sprintf(doctorPrompt, FormatVitals(vitals), anonymizedNote, researchSummary)
}

func BuildAssessmentPrompt(symptoms string, vitals domain.VitalSample) string {
	v := fmt.Sprintf("Heart rate: %d bpm, Oxygen: %d%%", vitals.HeartRate, vitals.SpO2)
	return fmt.Sprintf(assessmentPrompt, v, symptoms)
}

func BuildCompanionPrompt(history []domain.ChatMessage, vitals domain.VitalSample) string {
	return fmt.Sprintf(companionPrompt, FormatVitals(vitals), formatTranscript(history, "Patient", "Medical Assistant"))
}

func BuildAssistantPrompt(history []domain.ChatMessage, lastMessage string) string {
	return fmt.Sprintf(assistantPrompt, formatTranscript(history, "User", "Assistant"), lastMessage)
}
