package domain

import "time"

// VitalSample is one synthetic monitor reading.
type VitalSample struct {
	Timestamp   time.Time `json:"timestamp"`
	HeartRate   int       `json:"heart_rate"`   // bpm
	SpO2        int       `json:"spo2"`         // %
	BPSystolic  int       `json:"bp_systolic"`  // mmHg
	BPDiastolic int       `json:"bp_diastolic"` // mmHg
}

// Attachment is an inline image sent along with a prompt.
type Attachment struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

type ChatMessage struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	ImageRef  string    `json:"image_ref,omitempty"`
}

type AlertLevel string

const (
	AlertNormal    AlertLevel = "normal"
	AlertAttention AlertLevel = "attention"
	AlertCritical  AlertLevel = "critical"
)

// Assessment is the patient-facing reading of vitals and symptoms.
type Assessment struct {
	Explanation string     `json:"explanation"`
	Advice      string     `json:"advice"`
	AlertLevel  AlertLevel `json:"alertLevel"`
}

// GuardResult holds the note before and after PII redaction.
// Masked wraps every PII span in ~~double tildes~~.
type GuardResult struct {
	Raw        string `json:"raw"`
	Masked     string `json:"masked"`
	Anonymized string `json:"anonymized"`
}

type Paper struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type ResearchResult struct {
	Summary string  `json:"summary"`
	Papers  []Paper `json:"papers"`
}

type Rationale struct {
	TextEvidence   []string `json:"textEvidence"`
	VisualEvidence string   `json:"visualEvidence"`
}

type DoctorResult struct {
	Diagnosis     string    `json:"diagnosis"`
	TreatmentPlan []string  `json:"treatmentPlan"`
	Rationale     Rationale `json:"xaiRationale"`
}
