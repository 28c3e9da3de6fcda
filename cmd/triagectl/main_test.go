package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"triage-assistant/internal/domain"
	"triage-assistant/internal/vitals"
)

func TestVitalsCommand(t *testing.T) {
	cmd := vitalsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--profile", "home", "--count", "5", "--seed", "7"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(lines))
	}
	for _, l := range lines {
		var s domain.VitalSample
		if err := json.Unmarshal([]byte(l), &s); err != nil {
			t.Fatal(err)
		}
		if !vitals.HomeProfile.SpO2.Contains(s.SpO2) {
			t.Errorf("SpO2 %d outside home profile", s.SpO2)
		}
	}
}

func TestVitalsCommandUnknownProfile(t *testing.T) {
	cmd := vitalsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--profile", "icu"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error")
	}
}

func mockEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("USE_MOCK_MODEL", "true")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("VITALS_SINK", "none")
	t.Setenv("TRIAGE_CONFIG_FILE", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "triagectl.log"))
}

func TestRunCommandWithMockModel(t *testing.T) {
	mockEnv(t)

	cmd := runCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--note", "Patient John Smith, 62, reports chest pain."})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	var run struct {
		Doctor domain.AgentState[domain.DoctorResult] `json:"doctor"`
		Guard  domain.AgentState[domain.GuardResult]  `json:"guard"`
	}
	if err := json.Unmarshal(out.Bytes(), &run); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if run.Doctor.Status != domain.StatusComplete {
		t.Errorf("expected complete run, got %s", run.Doctor.Status)
	}
	if run.Guard.Data == nil || strings.Contains(run.Guard.Data.Anonymized, "John Smith") {
		t.Errorf("name leaked past the guard: %+v", run.Guard.Data)
	}
}

func TestAskCommandWithMockModel(t *testing.T) {
	mockEnv(t)

	cmd := askCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--persona", "assistant", "I have a headache"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) == "" {
		t.Error("expected a reply")
	}
}

func TestReadImage(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "scan.png")
	os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n0000000000"), 0o644)
	txt := filepath.Join(dir, "note.txt")
	os.WriteFile(txt, []byte("hello"), 0o644)

	img, err := readImage(png)
	if err != nil || img.MIMEType != "image/png" {
		t.Errorf("unexpected result %+v, %v", img, err)
	}
	if _, err := readImage(txt); err == nil {
		t.Error("text file accepted as image")
	}
	if img, err := readImage(""); img != nil || err != nil {
		t.Error("empty path should mean no image")
	}
}
