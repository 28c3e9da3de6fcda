package agent

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"triage-assistant/internal/domain"
)

var _ Client = (*GeminiClient)(nil)
var _ Client = (*MockClient)(nil)

func TestParseDoctor(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
		want    string
	}{
		{
			name: "valid",
			text: `{"diagnosis":"Unstable angina","treatmentPlan":["ECG","Aspirin"],"xaiRationale":{"textEvidence":["chest tightness"],"visualEvidence":"No scan provided"}}`,
			want: "Unstable angina",
		},
		{name: "empty", text: "  ", wantErr: true},
		{name: "not json", text: "Diagnosis: flu", wantErr: true},
		{name: "missing diagnosis", text: `{"treatmentPlan":[]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDoctor(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrBadResponse) {
					t.Fatalf("expected ErrBadResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Diagnosis != tt.want {
				t.Errorf("diagnosis = %q, want %q", got.Diagnosis, tt.want)
			}
			if len(got.TreatmentPlan) != 2 || got.TreatmentPlan[0] != "ECG" {
				t.Errorf("treatment plan order not kept: %v", got.TreatmentPlan)
			}
		})
	}
}

func TestParseAssessmentRejectsUnknownLevel(t *testing.T) {
	_, err := parseAssessment(`{"explanation":"x","advice":"y","alertLevel":"panic"}`)
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}

	got, err := parseAssessment(`{"explanation":"x","advice":"y","alertLevel":"attention"}`)
	if err != nil || got.AlertLevel != domain.AlertAttention {
		t.Fatalf("unexpected result %+v, %v", got, err)
	}
}

func TestPapersFromChunksKeepsOrder(t *testing.T) {
	chunks := []*genai.GroundingChunk{
		{Web: &genai.GroundingChunkWeb{Title: "First", URI: "https://a"}},
		nil,
		{},
		{Web: &genai.GroundingChunkWeb{Title: "Second", URI: "https://b"}},
	}

	papers := papersFromChunks(chunks)
	if len(papers) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(papers))
	}
	if papers[0].Title != "First" || papers[1].URI != "https://b" {
		t.Errorf("unexpected papers: %+v", papers)
	}

	if got := papersFromChunks(nil); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestMockGuardWrapsPII(t *testing.T) {
	m := NewMockClient()
	masked, err := m.RunGuard(context.Background(), "Patient 45-year-old John Doe presents with chest pain since 03/04/2024.")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"~~John Doe~~", "~~03/04/2024~~"} {
		if !strings.Contains(masked, want) {
			t.Errorf("expected %q in %q", want, masked)
		}
	}
	if strings.Contains(masked, "~~~~") {
		t.Errorf("nested markers in %q", masked)
	}
}

func TestAlertLevelFor(t *testing.T) {
	cases := []struct {
		v    domain.VitalSample
		want domain.AlertLevel
	}{
		{domain.VitalSample{HeartRate: 72, SpO2: 98}, domain.AlertNormal},
		{domain.VitalSample{HeartRate: 110, SpO2: 98}, domain.AlertAttention},
		{domain.VitalSample{HeartRate: 80, SpO2: 93}, domain.AlertAttention},
		{domain.VitalSample{HeartRate: 130, SpO2: 98}, domain.AlertCritical},
		{domain.VitalSample{HeartRate: 80, SpO2: 90}, domain.AlertCritical},
	}
	for _, c := range cases {
		if got := AlertLevelFor(c.v); got != c.want {
			t.Errorf("AlertLevelFor(%+v) = %s, want %s", c.v, got, c.want)
		}
	}
}

func TestPromptsCarryContext(t *testing.T) {
	v := domain.VitalSample{HeartRate: 88, SpO2: 97, BPSystolic: 121, BPDiastolic: 79}
	if got := FormatVitals(v); got != "HR: 88, BP: 121/79, SpO2: 97%" {
		t.Errorf("FormatVitals = %q", got)
	}

	history := []domain.ChatMessage{
		{Role: domain.RoleAI, Text: "Hello"},
		{Role: domain.RoleUser, Text: "My head hurts"},
	}
	p := BuildCompanionPrompt(history, v)
	if !strings.Contains(p, "Medical Assistant: Hello\nPatient: My head hurts") {
		t.Errorf("companion prompt missing transcript:\n%s", p)
	}

	p = BuildAssistantPrompt(history, "Is it serious?")
	if !strings.Contains(p, "User: My head hurts") || !strings.Contains(p, "User: Is it serious?") {
		t.Errorf("assistant prompt missing turns:\n%s", p)
	}
}

func TestWhisperTranscribe(t *testing.T) {
	wav := []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

	tests := []struct {
		name     string
		language string
		wantLang string
	}{
		{"default english hint", "", "en"},
		{"explicit language", "de", "de"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				file, hdr, err := r.FormFile("file")
				if err != nil {
					http.Error(w, "no file", http.StatusBadRequest)
					return
				}
				data, _ := io.ReadAll(file)
				if string(data) != string(wav) || hdr.Filename != "note.wav" {
					http.Error(w, "bad audio "+hdr.Filename, http.StatusBadRequest)
					return
				}
				if got := r.FormValue("language"); got != tt.wantLang {
					http.Error(w, "language "+got, http.StatusBadRequest)
					return
				}
				if !strings.Contains(r.FormValue("initial_prompt"), "triage") {
					http.Error(w, "missing prompt", http.StatusBadRequest)
					return
				}
				w.Write([]byte(`{"text":"  patient reports chest pain\n","language":"en"}`))
			}))
			defer srv.Close()

			c := NewWhisperClient(srv.URL)
			if tt.language != "" {
				c.WithLanguage(tt.language)
			}
			text, err := c.Transcribe(context.Background(), wav)
			if err != nil {
				t.Fatalf("Transcribe failed: %v", err)
			}
			if text != "patient reports chest pain" {
				t.Errorf("unexpected text %q", text)
			}
		})
	}
}

func TestAudioFileName(t *testing.T) {
	tests := []struct {
		data []byte
		want string
	}{
		{[]byte("RIFF\x24\x00\x00\x00WAVEfmt "), "note.wav"},
		{[]byte("OggS\x00\x02"), "note.ogg"},
		{[]byte("ID3\x03\x00"), "note.mp3"},
		{[]byte("\x1a\x45\xdf\xa3"), "note.webm"},
		{[]byte("unknown"), "note.wav"},
	}
	for _, tt := range tests {
		if got := audioFileName(tt.data); got != tt.want {
			t.Errorf("audioFileName(%q) = %q, want %q", tt.data, got, tt.want)
		}
	}
}

func TestWhisperTranscribeEmptyAudio(t *testing.T) {
	if _, err := NewWhisperClient("http://127.0.0.1:1").Transcribe(context.Background(), nil); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestWhisperTranscribeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewWhisperClient(srv.URL).Transcribe(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
