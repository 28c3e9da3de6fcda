package triage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"triage-assistant/internal/domain"
	"triage-assistant/internal/observability"
)

// AgentClient is the part of the remote model client the pipeline needs.
type AgentClient interface {
	RunGuard(ctx context.Context, note string) (string, error)
	RunResearcher(ctx context.Context, anonymizedNote string, vitals domain.VitalSample) (domain.ResearchResult, error)
	RunDoctor(ctx context.Context, anonymizedNote string, vitals domain.VitalSample, researchSummary string, scan *domain.Attachment) (domain.DoctorResult, error)
}

// VitalsSource supplies the reading used when a request carries none.
type VitalsSource interface {
	Current() domain.VitalSample
}

// ReportService renders finished runs and delivers them to the doctor.
type ReportService interface {
	RenderTriageReport(run Run) ([]byte, error)
	SendTriageReport(ctx context.Context, run Run) error
}

type Service struct {
	repo   Repository
	ai     AgentClient
	vitals VitalsSource
	report ReportService
	now    func() time.Time

	mu   sync.Mutex
	subs map[uuid.UUID]map[chan *Run]struct{}
	wg   sync.WaitGroup
}

// NewService wires the pipeline. report may be nil.
func NewService(repo Repository, ai AgentClient, vitals VitalsSource, report ReportService) *Service {
	return &Service{
		repo:   repo,
		ai:     ai,
		vitals: vitals,
		report: report,
		now:    time.Now,
		subs:   make(map[uuid.UUID]map[chan *Run]struct{}),
	}
}

func (s *Service) prepare(ctx context.Context, req Request) (*Run, error) {
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return nil, ErrEmptyNote
	}

	var vitals domain.VitalSample
	switch {
	case req.Vitals != nil:
		vitals = *req.Vitals
	case s.vitals != nil:
		vitals = s.vitals.Current()
	}

	run := newRun(note, vitals, req.Image != nil, s.now())
	run.Guard.Start("Scanning note for PII patterns...", "Initializing privacy protocols...")
	if err := s.repo.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("saving triage run: %w", err)
	}
	return run, nil
}

// Start saves a fresh run and executes the pipeline in the background.
// The pipeline outlives the caller's context: leaving the page does not stop it.
func (s *Service) Start(ctx context.Context, req Request) (*Run, error) {
	run, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := run.Clone()

	bgCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.pipeline(bgCtx, run, req.Image)
	}()

	return snapshot, nil
}

// Execute runs the whole pipeline before returning. The returned run is
// valid even when err is set and shows which stage failed.
func (s *Service) Execute(ctx context.Context, req Request) (*Run, error) {
	run, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	err = s.pipeline(ctx, run, req.Image)
	return run.Clone(), err
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]*Run, error) {
	return s.repo.List(ctx, limit)
}

func (s *Service) Report(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if s.report == nil {
		return nil, fmt.Errorf("reports are not configured")
	}
	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Doctor.Status != domain.StatusComplete {
		return nil, fmt.Errorf("run %s has no diagnosis yet", id)
	}
	return s.report.RenderTriageReport(*run)
}

// pipeline owns run until it returns; nothing else mutates it.
func (s *Service) pipeline(ctx context.Context, run *Run, image *domain.Attachment) error {
	log := observability.LoggerFromContext(ctx).With("run_id", run.ID)
	log.Info("triage started", "has_image", image != nil)
	defer s.finish(run.ID)

	// Guard
	start := time.Now()
	masked, err := s.ai.RunGuard(ctx, run.Note)
	if err != nil {
		run.Guard.Fail("System error: guard failed.")
		return s.abort(ctx, run, StageGuard, err)
	}
	guard := NewGuardResult(run.Note, masked)
	if !MarkersBalanced(masked) {
		log.Warn("unbalanced PII markers in guard output")
		run.Guard.Log("Warning: unbalanced PII markers, redacting to end of note.")
	}
	run.Guard.Log("PII redacted successfully.")
	run.Guard.Complete(guard)
	s.commit(ctx, run)
	log.Info("stage complete", "stage", StageGuard, "elapsed_ms", time.Since(start).Milliseconds())

	// Researcher
	run.Research.Start("Receiving anonymized context...", "Accessing medical knowledge base...")
	run.Research.Log("Querying PubMed & NIH databases...")
	s.commit(ctx, run)

	start = time.Now()
	research, err := s.ai.RunResearcher(ctx, guard.Anonymized, run.Vitals)
	if err != nil {
		run.Research.Fail("System error: researcher failed.")
		return s.abort(ctx, run, StageResearcher, err)
	}
	run.Research.Log(fmt.Sprintf("Retrieved %d citations.", len(research.Papers)))
	run.Research.Complete(research)
	s.commit(ctx, run)
	log.Info("stage complete", "stage", StageResearcher, "elapsed_ms", time.Since(start).Milliseconds())

	// Doctor
	visual := "Checking for visual inputs..."
	if image != nil {
		visual = "Analyzing multimodal visual data..."
	}
	run.Doctor.Start("Synthesizing clinical data...", "Evaluating vital trends...", visual)
	run.Doctor.Log("Formulating diagnosis and XAI rationale...")
	s.commit(ctx, run)

	start = time.Now()
	diagnosis, err := s.ai.RunDoctor(ctx, guard.Anonymized, run.Vitals, research.Summary, image)
	if err != nil {
		run.Doctor.Fail("System error: doctor failed.")
		return s.abort(ctx, run, StageDoctor, err)
	}
	run.Doctor.Complete(diagnosis)
	s.commit(ctx, run)
	log.Info("stage complete", "stage", StageDoctor, "elapsed_ms", time.Since(start).Milliseconds())

	if s.report != nil {
		if err := s.report.SendTriageReport(ctx, *run.Clone()); err != nil {
			log.Error("failed to send triage report", "error", err)
		}
	}

	log.Info("triage complete")
	return nil
}

func (s *Service) abort(ctx context.Context, run *Run, stage Stage, err error) error {
	s.commit(ctx, run)
	observability.LoggerFromContext(ctx).Error("triage stage failed",
		"run_id", run.ID,
		"stage", stage,
		"error", err)
	return fmt.Errorf("%s stage failed: %w", stage, err)
}

// commit persists the run and pushes a copy to subscribers.
func (s *Service) commit(ctx context.Context, run *Run) {
	run.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, run); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to save triage run", "run_id", run.ID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs[run.ID] {
		select {
		case ch <- run.Clone():
		default:
		}
	}
}

// finish closes every subscriber of the run.
func (s *Service) finish(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs[id] {
		close(ch)
	}
	delete(s.subs, id)
}

// Subscribe streams snapshots of a run as it moves through the stages.
// The channel is closed when the run finishes or cancel is called.
func (s *Service) Subscribe(id uuid.UUID) (<-chan *Run, func()) {
	ch := make(chan *Run, 16)

	s.mu.Lock()
	if s.subs[id] == nil {
		s.subs[id] = make(map[chan *Run]struct{})
	}
	s.subs[id][ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id][ch]; ok {
			delete(s.subs[id], ch)
			close(ch)
		}
		if len(s.subs[id]) == 0 {
			delete(s.subs, id)
		}
	}
}
