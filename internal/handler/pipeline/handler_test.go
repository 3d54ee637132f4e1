package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/voice-pipeline/backend/internal/audio"
	"github.com/zhouzirui/voice-pipeline/backend/internal/model/speech"
	pipelinesvc "github.com/zhouzirui/voice-pipeline/backend/internal/service/pipeline"
)

type fakeRunner struct {
	result *speech.PipelineResult
	err    error
	delay  time.Duration

	mu    sync.Mutex
	got   speech.AudioBlob
	calls int
}

func (f *fakeRunner) Run(_ context.Context, blob speech.AudioBlob) (*speech.PipelineResult, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = blob
	return f.result, f.err
}

func (f *fakeRunner) last() speech.AudioBlob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

func newTestHandler(runner Runner) *Handler {
	h := New(runner, Status{Device: "cpu", LLMAvailable: true}, nil)
	h.cpuUsage = func(context.Context) (float64, error) { return 12.5, nil }
	h.memoryUsage = func(context.Context) (float64, error) { return 40, nil }
	return h
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestProcessAudio(t *testing.T) {
	cases := []struct {
		name       string
		field      string
		runErr     error
		wantStatus int
		wantError  string
	}{
		{"success", "audio", nil, http.StatusOK, ""},
		{"missing file", "file", nil, http.StatusBadRequest, "No audio file provided"},
		{"bad audio", "audio", &pipelinesvc.ClientError{Message: pipelinesvc.MsgBadAudio, Err: audio.ErrAudioDecode}, http.StatusBadRequest, pipelinesvc.MsgBadAudio},
		{"no transcription", "audio", &pipelinesvc.ClientError{Message: pipelinesvc.MsgNoTranscription}, http.StatusBadRequest, pipelinesvc.MsgNoTranscription},
		{"server fault", "audio", &pipelinesvc.ServerFault{Err: errors.New("nil pointer")}, http.StatusInternalServerError, pipelinesvc.MsgInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{
				result: &speech.PipelineResult{Transcription: "hello", ResponseText: "hi there"},
				err:    tc.runErr,
			}
			body, contentType := multipartBody(t, tc.field, "clip.wav", []byte("RIFF"))
			req := httptest.NewRequest(http.MethodPost, "/process_audio", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			newRouter(newTestHandler(runner)).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			out := decodeBody(t, rec)
			if tc.wantError != "" {
				if out["error"] != tc.wantError {
					t.Fatalf("error = %v, want %q", out["error"], tc.wantError)
				}
				return
			}
			if out["transcription"] != "hello" || out["response_text"] != "hi there" || out["audio_available"] != false {
				t.Fatalf("unexpected body: %v", out)
			}
			if _, ok := out["audio_data"]; ok {
				t.Fatalf("audio_data must be omitted when no audio: %v", out)
			}
			if runner.got.Format != audio.FormatWAV {
				t.Fatalf("format = %q", runner.got.Format)
			}
		})
	}
}

func TestProcessAudioWithoutMultipart(t *testing.T) {
	runner := &fakeRunner{}
	req := httptest.NewRequest(http.MethodPost, "/process_audio", strings.NewReader("raw"))
	rec := httptest.NewRecorder()

	newRouter(newTestHandler(runner)).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if runner.calls != 0 {
		t.Fatalf("pipeline must not run without a file")
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&fakeRunner{})
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	out := decodeBody(t, rec)
	want := map[string]any{
		"status":         "healthy",
		"device":         "cpu",
		"llm_available":  true,
		"tts_available":  false,
		"cpu_percent":    12.5,
		"memory_percent": 40.0,
	}
	for k, v := range want {
		if out[k] != v {
			t.Fatalf("%s = %v, want %v", k, out[k], v)
		}
	}
}

func TestHealthToleratesStatsFailure(t *testing.T) {
	h := newTestHandler(&fakeRunner{})
	h.cpuUsage = func(context.Context) (float64, error) { return 0, errors.New("no procfs") }
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out := decodeBody(t, rec); out["cpu_percent"] != 0.0 {
		t.Fatalf("cpu_percent = %v", out["cpu_percent"])
	}
}

func TestStatusFrom(t *testing.T) {
	caps := &pipelinesvc.Capabilities{Device: "cuda", LLMAvailable: true}
	got := StatusFrom(caps)
	if got.Device != "cuda" || !got.LLMAvailable || got.TTSAvailable {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestInferAudioFormat(t *testing.T) {
	cases := map[string]string{
		"a.mp3":   audio.FormatMP3,
		"b.WAV":   audio.FormatWAV,
		"c.pcm":   audio.FormatPCM,
		"d.webm":  audio.FormatUnknown,
		"noext":   audio.FormatUnknown,
		"e.wave":  audio.FormatWAV,
		"f.raw":   audio.FormatPCM,
		"g.x.mp3": audio.FormatMP3,
	}
	for name, want := range cases {
		if got := inferAudioFormat(name); got != want {
			t.Errorf("inferAudioFormat(%q) = %q, want %q", name, got, want)
		}
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) outgoingMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg outgoingMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWebSocketRoundTrip(t *testing.T) {
	runner := &fakeRunner{result: &speech.PipelineResult{Transcription: "hello", ResponseText: "hi"}}
	srv := httptest.NewServer(newRouter(newTestHandler(runner)))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if msg := readMessage(t, conn); msg.Type != "status" {
		t.Fatalf("expected status greeting, got %+v", msg)
	}

	send := func(v any) {
		t.Helper()
		if err := conn.WriteJSON(v); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	send(map[string]any{"type": "audio", "data": AudioMessage{AudioData: []byte("RIFFxxxx"), Format: "wav"}})
	msg := readMessage(t, conn)
	if msg.Type != "result" || msg.RequestID == "" {
		t.Fatalf("expected result, got %+v", msg)
	}
	data, _ := json.Marshal(msg.Data)
	var result speech.PipelineResult
	if err := json.Unmarshal(data, &result); err != nil || result.ResponseText != "hi" {
		t.Fatalf("unexpected result payload %s: %v", data, err)
	}
	if got := runner.last(); string(got.Data) != "RIFFxxxx" || got.Format != "wav" {
		t.Fatalf("runner got %+v", got)
	}

	send(map[string]any{"type": "audio", "data": AudioMessage{}})
	if msg := readMessage(t, conn); msg.Type != "error" {
		t.Fatalf("expected error for empty audio, got %+v", msg)
	}

	send(map[string]any{"type": "config"})
	if msg := readMessage(t, conn); msg.Type != "error" {
		t.Fatalf("expected error for unknown type, got %+v", msg)
	}

	send(map[string]any{"type": "ping"})
	if msg := readMessage(t, conn); msg.Type != "pong" {
		t.Fatalf("expected pong, got %+v", msg)
	}
}

func TestWebSocketClientError(t *testing.T) {
	runner := &fakeRunner{err: &pipelinesvc.ClientError{Message: pipelinesvc.MsgNoTranscription}}
	srv := httptest.NewServer(newRouter(newTestHandler(runner)))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "audio", "data": AudioMessage{AudioData: []byte{1, 2}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readMessage(t, conn)
	payload, _ := msg.Data.(map[string]any)
	if msg.Type != "error" || payload["message"] != pipelinesvc.MsgNoTranscription {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestWebSocketSurvivesRunLongerThanReadTimeout(t *testing.T) {
	runner := &fakeRunner{
		result: &speech.PipelineResult{Transcription: "hello", ResponseText: "hi"},
		delay:  600 * time.Millisecond,
	}
	h := newTestHandler(runner)
	h.readTimeout = 300 * time.Millisecond
	srv := httptest.NewServer(newRouter(h))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]any{"type": "audio", "data": AudioMessage{AudioData: []byte{1, 2}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "result" {
		t.Fatalf("expected result, got %+v", msg)
	}

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "pong" {
		t.Fatalf("connection should stay usable after a slow run, got %+v", msg)
	}
}
