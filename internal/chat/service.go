package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"triage-assistant/internal/domain"
	"triage-assistant/internal/observability"
)

// AgentClient is the part of the remote model client the chat needs.
type AgentClient interface {
	RunCompanion(ctx context.Context, history []domain.ChatMessage, vitals domain.VitalSample, image *domain.Attachment) (string, error)
	RunHealthAssistant(ctx context.Context, history []domain.ChatMessage, lastMessage string) (string, error)
	RunPatientAssessment(ctx context.Context, symptoms string, vitals domain.VitalSample) (domain.Assessment, error)
}

type VitalsSource interface {
	Current() domain.VitalSample
}

type Service struct {
	repo   Repository
	ai     AgentClient
	vitals VitalsSource
	now    func() time.Time

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewService(repo Repository, ai AgentClient, vitals VitalsSource) *Service {
	return &Service{
		repo:     repo,
		ai:       ai,
		vitals:   vitals,
		now:      time.Now,
		inFlight: make(map[uuid.UUID]struct{}),
	}
}

// CreateSession opens a transcript holding only the persona's greeting.
func (s *Service) CreateSession(ctx context.Context, persona Persona) (*Session, error) {
	now := s.now()
	session := &Session{
		ID:      uuid.New(),
		Persona: persona,
		Messages: []domain.ChatMessage{
			{Role: domain.RoleAI, Text: persona.greeting(), Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("saving chat session: %w", err)
	}
	return session.Clone(), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Service) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// Send runs one turn: the user message and exactly one reply are appended
// and saved together, so a failed save leaves the stored transcript as it was.
// A failed model call is answered with the persona's fallback text rather
// than an error. The assistant persona ignores images.
func (s *Service) Send(ctx context.Context, id uuid.UUID, text string, image *domain.Attachment) (*Session, error) {
	text = strings.TrimSpace(text)

	if !s.acquire(id) {
		return nil, ErrBusy
	}
	defer s.release(id)

	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Persona == PersonaAssistant {
		image = nil
	}
	if text == "" && image == nil {
		return nil, ErrEmptyMessage
	}

	prior := session.Messages
	user := domain.ChatMessage{Role: domain.RoleUser, Text: text, Timestamp: s.now()}
	if image != nil {
		user.ImageRef = dataURL(image)
	}
	session.Messages = append(session.Messages, user)

	log := observability.LoggerFromContext(ctx).With("session_id", id, "persona", session.Persona)
	start := time.Now()

	var reply string
	switch session.Persona {
	case PersonaAssistant:
		reply, err = s.ai.RunHealthAssistant(ctx, prior, text)
	default:
		var vitals domain.VitalSample
		if s.vitals != nil {
			vitals = s.vitals.Current()
		}
		reply, err = s.ai.RunCompanion(ctx, session.Messages, vitals, image)
	}
	if err != nil {
		log.Error("chat model call failed", "error", err)
		reply = session.Persona.fallback()
	} else {
		log.Info("chat reply generated", "elapsed_ms", time.Since(start).Milliseconds())
	}

	now := s.now()
	session.Messages = append(session.Messages, domain.ChatMessage{Role: domain.RoleAI, Text: reply, Timestamp: now})
	session.UpdatedAt = now
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("saving chat session: %w", err)
	}
	return session.Clone(), nil
}

// Assess gives the patient a plain-language reading of symptoms and vitals.
// When vitals is nil the live monitor reading is used.
func (s *Service) Assess(ctx context.Context, symptoms string, vitals *domain.VitalSample) (domain.Assessment, error) {
	var v domain.VitalSample
	switch {
	case vitals != nil:
		v = *vitals
	case s.vitals != nil:
		v = s.vitals.Current()
	}

	symptoms = strings.TrimSpace(symptoms)
	if symptoms == "" {
		symptoms = "None reported."
	}

	a, err := s.ai.RunPatientAssessment(ctx, symptoms, v)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("patient assessment failed: %w", err)
	}
	return a, nil
}

func dataURL(a *domain.Attachment) string {
	return "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}
