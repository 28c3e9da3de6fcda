package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"triage-assistant/internal/domain"
)

var (
	ErrNotFound       = errors.New("chat session not found")
	ErrBusy           = errors.New("a reply is already being generated")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrUnknownPersona = errors.New("unknown persona")
)

type Persona string

const (
	// PersonaCompanion is the patient-view assistant that sees live vitals
	// and accepts photos.
	PersonaCompanion Persona = "companion"
	// PersonaAssistant is the plain text health assistant.
	PersonaAssistant Persona = "assistant"
)

const (
	companionGreeting = "Systems online. I am your medical assistant. How can I assist you?"
	assistantGreeting = "Hello! I'm your personal health assistant. How can I help you today?"

	companionFallback = "Connection error. Retrying..."
	assistantFallback = "Sorry, I couldn't connect right now."
)

// ParsePersona maps an empty string to the companion.
func ParsePersona(s string) (Persona, error) {
	switch Persona(s) {
	case "", PersonaCompanion:
		return PersonaCompanion, nil
	case PersonaAssistant:
		return PersonaAssistant, nil
	}
	return "", ErrUnknownPersona
}

func (p Persona) greeting() string {
	if p == PersonaAssistant {
		return assistantGreeting
	}
	return companionGreeting
}

func (p Persona) fallback() string {
	if p == PersonaAssistant {
		return assistantFallback
	}
	return companionFallback
}

// Session is an ordered transcript, oldest message first.
type Session struct {
	ID        uuid.UUID            `json:"id"`
	Persona   Persona              `json:"persona"`
	Messages  []domain.ChatMessage `json:"messages"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func (s *Session) Clone() *Session {
	c := *s
	c.Messages = append([]domain.ChatMessage{}, s.Messages...)
	return &c
}
