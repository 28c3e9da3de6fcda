package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signintech/gopdf"

	"triage-assistant/internal/domain"
	"triage-assistant/internal/observability"
	"triage-assistant/internal/triage"
)

var ErrNoFont = errors.New("no usable TTF font for PDF reports")

// DejaVuSans covers the Latin and Cyrillic text models tend to return.
var defaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

const (
	fontFamily = "DejaVu"
	textWidth  = 500
	pageBottom = 780
)

type TelegramClient interface {
	SendMessage(chatID int64, text string) error
	SendDocument(chatID int64, fileData []byte, fileName string) error
}

type Service struct {
	tgClient     TelegramClient
	doctorChatID int64
	fontPaths    []string
}

// NewService builds the report service. tg may be nil, in which case reports
// are only rendered on request. fontPath, when set, is tried first.
func NewService(tg TelegramClient, doctorChatID int64, fontPath string) *Service {
	paths := defaultFontPaths
	if fontPath != "" {
		paths = append([]string{fontPath}, defaultFontPaths...)
	}
	return &Service{
		tgClient:     tg,
		doctorChatID: doctorChatID,
		fontPaths:    paths,
	}
}

func (s *Service) loadFont(pdf *gopdf.GoPdf) error {
	var lastErr error
	for _, path := range s.fontPaths {
		lastErr = pdf.AddTTFFont(fontFamily, path)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrNoFont, lastErr)
}

type writer struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *writer) font(size float64) {
	if w.err == nil {
		w.err = w.pdf.SetFont(fontFamily, "", size)
	}
}

func (w *writer) text(s string, lineHeight float64) {
	if w.err != nil {
		return
	}
	for _, para := range strings.Split(s, "\n") {
		lines, err := w.pdf.SplitText(para, textWidth)
		if err != nil {
			// SplitText fails on empty input.
			lines = []string{para}
		}
		for _, l := range lines {
			if w.pdf.GetY() > pageBottom {
				w.pdf.AddPage()
			}
			if err := w.pdf.Cell(nil, l); err != nil {
				w.err = err
				return
			}
			w.pdf.Br(lineHeight)
		}
	}
}

func (w *writer) heading(s string) {
	w.pdf.Br(10)
	w.font(14)
	w.text(s, 18)
	w.font(11)
}

// RenderTriageReport lays a finished run out as a one or more page PDF.
func (s *Service) RenderTriageReport(run triage.Run) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()
	if err := s.loadFont(pdf); err != nil {
		return nil, err
	}

	w := &writer{pdf: pdf}
	w.font(20)
	w.text("Clinical Triage Report", 30)

	w.font(11)
	w.text(fmt.Sprintf("Run: %s", run.ID), 14)
	w.text(fmt.Sprintf("Date: %s", run.CreatedAt.Format("02.01.2006 15:04")), 14)
	w.text(fmt.Sprintf("Vitals: HR %d bpm, BP %d/%d mmHg, SpO2 %d%%",
		run.Vitals.HeartRate, run.Vitals.BPSystolic, run.Vitals.BPDiastolic, run.Vitals.SpO2), 14)

	if g := run.Guard.Data; g != nil {
		w.heading("Anonymized note")
		w.text(g.Anonymized, 14)
	}

	if d := run.Doctor.Data; d != nil {
		w.heading("Diagnosis")
		w.text(d.Diagnosis, 14)

		w.heading("Treatment plan")
		if len(d.TreatmentPlan) == 0 {
			w.text("- None given.", 14)
		}
		for i, step := range d.TreatmentPlan {
			w.text(fmt.Sprintf("%d. %s", i+1, step), 14)
		}

		w.heading("Rationale")
		for _, ev := range d.Rationale.TextEvidence {
			w.text("- "+ev, 14)
		}
		if d.Rationale.VisualEvidence != "" {
			w.text("Visual: "+d.Rationale.VisualEvidence, 14)
		}
	}

	if r := run.Research.Data; r != nil {
		w.heading("Evidence")
		w.text(r.Summary, 14)
		for _, p := range r.Papers {
			w.text(fmt.Sprintf("- %s (%s)", p.Title, p.URI), 14)
		}
	}
	if w.err != nil {
		return nil, fmt.Errorf("failed to lay out PDF: %w", w.err)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// SendTriageReport posts a short summary and the PDF to the doctor's chat.
// Without a Telegram client or chat ID it does nothing.
func (s *Service) SendTriageReport(ctx context.Context, run triage.Run) error {
	if s.tgClient == nil || s.doctorChatID == 0 {
		return nil
	}
	log := observability.LoggerFromContext(ctx).With("run_id", run.ID)
	start := time.Now()

	if err := s.tgClient.SendMessage(s.doctorChatID, Summary(run)); err != nil {
		return fmt.Errorf("sending report summary: %w", err)
	}

	pdf, err := s.RenderTriageReport(run)
	if err != nil {
		return err
	}
	fileName := fmt.Sprintf("triage_%s.pdf", run.ID)
	if err := s.tgClient.SendDocument(s.doctorChatID, pdf, fileName); err != nil {
		return fmt.Errorf("sending report document: %w", err)
	}

	log.Info("triage report sent", "bytes", len(pdf), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// Summary is the plain-text message that goes out with the PDF.
func Summary(run triage.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Triage run %s\n", run.ID)
	fmt.Fprintf(&b, "HR: %d, BP: %d/%d, SpO2: %d%%\n",
		run.Vitals.HeartRate, run.Vitals.BPSystolic, run.Vitals.BPDiastolic, run.Vitals.SpO2)
	if run.Doctor.Status == domain.StatusComplete && run.Doctor.Data != nil {
		fmt.Fprintf(&b, "Diagnosis: %s", run.Doctor.Data.Diagnosis)
	} else {
		fmt.Fprintf(&b, "Diagnosis: pending (%s)", run.Doctor.Status)
	}
	return b.String()
}
