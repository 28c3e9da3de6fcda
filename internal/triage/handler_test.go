package triage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"triage-assistant/internal/domain"
	"triage-assistant/internal/platform/upload"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f.text, f.err
}

func newTestRouter(svc *Service, stt Transcriber) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(svc, stt))
	return r
}

func TestStartTriageJSON(t *testing.T) {
	svc := newTestService(&fakeAgent{}, nil)
	router := newTestRouter(svc, nil)

	body := `{"note":"John Doe has chest pain.","vitals":{"heart_rate":120,"spo2":91,"bp_systolic":150,"bp_diastolic":95}}`
	req := httptest.NewRequest(http.MethodPost, "/triage", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		RunID string `json:"run_id"`
		Run   Run    `json:"run"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Run.Guard.Status != domain.StatusWorking {
		t.Errorf("guard should be working, got %s", resp.Run.Guard.Status)
	}
	svc.Wait()

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/triage/"+resp.RunID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var run Run
	json.Unmarshal(rec.Body.Bytes(), &run)
	if run.Doctor.Status != domain.StatusComplete || run.Doctor.Data == nil {
		t.Errorf("run should be complete, got %+v", run.Doctor)
	}
	if run.Vitals.HeartRate != 120 {
		t.Errorf("request vitals ignored: %+v", run.Vitals)
	}
}

func TestStartTriageMultipart(t *testing.T) {
	var gotScan *domain.Attachment
	svc := newTestService(&fakeAgent{
		DoctorFunc: func(ctx context.Context, note string, v domain.VitalSample, summary string, scan *domain.Attachment) (domain.DoctorResult, error) {
			gotScan = scan
			return domain.DoctorResult{Diagnosis: "dx"}, nil
		},
	}, nil)
	router := newTestRouter(svc, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "Rash on left arm.")
	fw, _ := mw.CreateFormFile("image", "rash.png")
	fw.Write([]byte("\x89PNG\r\n\x1a\n0000000000"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/triage", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	svc.Wait()

	if gotScan == nil || gotScan.MIMEType != "image/png" {
		t.Errorf("doctor should receive the png scan, got %+v", gotScan)
	}
}

func TestStartTriageValidation(t *testing.T) {
	router := newTestRouter(newTestService(&fakeAgent{}, nil), nil)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"note":`},
		{"empty note", `{"note":"  "}`},
		{"bad image", `{"note":"n","image_base64":"!!!","image_mime_type":"image/png"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/triage", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestGetRunErrors(t *testing.T) {
	router := newTestRouter(newTestService(&fakeAgent{}, nil), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/triage/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/triage/7b0e5f9c-6d4b-4a8e-9a43-2f1f7c3a9f10", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	svc := newTestService(&fakeAgent{}, nil)
	for i := 0; i < 3; i++ {
		if _, err := svc.Execute(context.Background(), Request{Note: "n"}); err != nil {
			t.Fatal(err)
		}
	}
	router := newTestRouter(svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/triage?limit=2", nil))
	var resp struct {
		Runs []Run `json:"runs"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(resp.Runs))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/triage?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestStreamRunFinished(t *testing.T) {
	svc := newTestService(&fakeAgent{}, nil)
	run, err := svc.Execute(context.Background(), Request{Note: "n"})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(newTestRouter(svc, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/triage/" + run.ID.String() + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}
	scanner := bufio.NewScanner(resp.Body)
	var events []Run
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var r Run
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &r); err != nil {
			t.Fatal(err)
		}
		events = append(events, r)
	}
	if len(events) != 1 || events[0].Doctor.Status != domain.StatusComplete {
		t.Errorf("expected a single complete snapshot, got %d events", len(events))
	}
}

func TestGetReport(t *testing.T) {
	svc := newTestService(&fakeAgent{}, &fakeReport{})
	run, _ := svc.Execute(context.Background(), Request{Note: "n"})
	router := newTestRouter(svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/triage/"+run.ID.String()+"/report", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF-") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestDictate(t *testing.T) {
	post := func(stt Transcriber) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("audio", "note.ogg")
		fw.Write([]byte("OggS"))
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/triage/dictation", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		newTestRouter(newTestService(&fakeAgent{}, nil), stt).ServeHTTP(rec, req)
		return rec
	}

	rec := post(fakeTranscriber{text: "patient reports dizziness"})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "patient reports dizziness") {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if rec := post(fakeTranscriber{err: errors.New("down")}); rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
	if rec := post(nil); rec.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", rec.Code)
	}
}

func TestStreamRunLive(t *testing.T) {
	release := make(chan struct{})
	svc := newTestService(&fakeAgent{
		GuardFunc: func(ctx context.Context, note string) (string, error) {
			<-release
			return "~~John Doe~~ has chest pain.", nil
		},
	}, nil)
	run, err := svc.Start(context.Background(), Request{Note: "John Doe has chest pain."})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Wait()

	srv := httptest.NewServer(newTestRouter(svc, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/triage/" + run.ID.String() + "/events")
	if err != nil {
		close(release)
		t.Fatal(err)
	}
	defer resp.Body.Close()

	events := make(chan Run, 32)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var r Run
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &r) == nil {
				events <- r
			}
		}
	}()

	first := <-events
	if first.Guard.Status != domain.StatusWorking || first.Doctor.Status != domain.StatusIdle {
		t.Errorf("first snapshot should show the guard working, got guard=%s doctor=%s",
			first.Guard.Status, first.Doctor.Status)
	}
	close(release)

	var last Run
	count := 1
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case r, open := <-events:
			if !open {
				done = true
				break
			}
			last = r
			count++
		case <-timeout:
			t.Fatal("stream did not end")
		}
	}
	if count < 2 {
		t.Fatalf("expected live transitions, got %d events", count)
	}
	if last.Doctor.Status != domain.StatusComplete || last.Doctor.Data == nil {
		t.Errorf("last snapshot should be complete, got doctor=%s", last.Doctor.Status)
	}
}

func TestStartTriageRejectsOversizedBody(t *testing.T) {
	ai := &fakeAgent{}
	router := newTestRouter(newTestService(ai, nil), nil)

	body := `{"note":"n","image_base64":"` + strings.Repeat("A", upload.MaxRequestSize) + `"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/triage", strings.NewReader(body)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
	if len(ai.calls) != 0 {
		t.Error("no pipeline should start for a rejected body")
	}
}

func TestDictateRejectsEmptyAudio(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.CreateFormFile("audio", "note.ogg")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/triage/dictation", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newTestRouter(newTestService(&fakeAgent{}, nil), fakeTranscriber{text: "x"}).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
