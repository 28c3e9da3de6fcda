package triage

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"triage-assistant/internal/domain"
)

var (
	ErrNotFound  = errors.New("triage run not found")
	ErrEmptyNote = errors.New("clinical note is empty")
)

type Stage string

const (
	StageGuard      Stage = "guard"
	StageResearcher Stage = "researcher"
	StageDoctor     Stage = "doctor"
)

type Request struct {
	Note string
	// Vitals defaults to the live monitor reading when nil.
	Vitals *domain.VitalSample
	Image  *domain.Attachment
}

// Run is one pass through guard -> researcher -> doctor.
type Run struct {
	ID       uuid.UUID          `json:"id"`
	Note     string             `json:"note"`
	Vitals   domain.VitalSample `json:"vitals"`
	HasImage bool               `json:"has_image"`

	Guard    domain.AgentState[domain.GuardResult]    `json:"guard"`
	Research domain.AgentState[domain.ResearchResult] `json:"researcher"`
	Doctor   domain.AgentState[domain.DoctorResult]   `json:"doctor"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newRun(note string, vitals domain.VitalSample, hasImage bool, now time.Time) *Run {
	return &Run{
		ID:        uuid.New(),
		Note:      note,
		Vitals:    vitals,
		HasImage:  hasImage,
		Guard:     domain.NewAgentState[domain.GuardResult](),
		Research:  domain.NewAgentState[domain.ResearchResult](),
		Doctor:    domain.NewAgentState[domain.DoctorResult](),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Finished reports whether the pipeline has nothing left to do.
func (r *Run) Finished() bool {
	if r.Guard.Status == domain.StatusError ||
		r.Research.Status == domain.StatusError ||
		r.Doctor.Status == domain.StatusError {
		return true
	}
	return r.Doctor.Status == domain.StatusComplete
}

func (r *Run) Clone() *Run {
	c := *r
	c.Guard = r.Guard.Clone()
	c.Research = r.Research.Clone()
	c.Doctor = r.Doctor.Clone()
	return &c
}
