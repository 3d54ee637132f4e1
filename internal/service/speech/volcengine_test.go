package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
)

var testVolcConfig = config.VolcengineConfig{
	AppID:       "app",
	AccessToken: "token",
	ASRLanguage: "en-US",
	TTSVoice:    "en_female_amy_jupiter_bigtts",
	TTSSpeed:    1.0,
	TTSVolume:   1.0,
}

func newWSServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestVolcHeadersRequiresCredentials(t *testing.T) {
	if _, err := volcHeaders(config.VolcengineConfig{AppID: "app"}, "r", "c"); !errors.Is(err, errMissingVolcCredentials) {
		t.Fatalf("expected missing credentials error, got %v", err)
	}

	header, err := volcHeaders(testVolcConfig, "resource", "connect")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header.Get("X-Api-Resource-Id") != "resource" || header.Get("X-Api-Connect-Id") != "connect" {
		t.Fatalf("unexpected headers: %v", header)
	}
}

func TestTTSResourceCandidates(t *testing.T) {
	tests := []struct {
		speaker string
		want    []string
	}{
		{"S_clone_speaker", []string{volcTTSResourceMega}},
		{"zh_female_vv_uranus_bigtts", []string{volcTTSResourceSeed, volcTTSResourceDefault}},
		{"en_male_organizer", []string{volcTTSResourceDefault, volcTTSResourceSeed}},
	}
	for _, tt := range tests {
		if got := ttsResourceCandidates(tt.speaker); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ttsResourceCandidates(%q) = %v, want %v", tt.speaker, got, tt.want)
		}
	}
}

func TestClassifyTTSError(t *testing.T) {
	if err := classifyTTSError(`{"error":"resource ID is mismatched with speaker related resource"}`); !errors.Is(err, errResourceMismatch) {
		t.Fatalf("expected mismatch error, got %v", err)
	}
	if err := classifyTTSError("quota exceeded"); errors.Is(err, errResourceMismatch) {
		t.Fatalf("unrelated error classified as mismatch")
	}
}

func TestVolcengineRecognizerStreamsChunks(t *testing.T) {
	var (
		mu      sync.Mutex
		packets int
		request volcASRRequest
	)

	url := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		if r.Header.Get("X-Api-Resource-Id") != volcASRResourceDuration {
			t.Errorf("unexpected resource id %q", r.Header.Get("X-Api-Resource-Id"))
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := unmarshalFrame(data)
			if err != nil {
				t.Errorf("bad frame: %v", err)
				return
			}
			payload, _ := decompressPayload(msg.Payload, msg.Compression)

			mu.Lock()
			if msg.Type == frameFullClientRequest {
				json.Unmarshal(payload, &request)
			} else {
				packets++
			}
			mu.Unlock()

			if msg.Type == frameAudioOnlyRequest && msg.isLast() {
				reply, _ := json.Marshal(map[string]any{
					"code":     0,
					"sequence": -1,
					"result":   map[string]any{"text": "hello world"},
				})
				out := &frame{Type: frameFullServerReply, Flags: flagNegativeSequence, Sequence: -1, Serialization: serializeJSON, Payload: reply}
				conn.WriteMessage(websocket.BinaryMessage, out.marshal())
				return
			}
		}
	})

	recognizer, err := NewVolcengineRecognizer(testVolcConfig, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recognizer.endpoint = url
	recognizer.interval = 0

	// 1 秒 16kHz 音频 = 32000 字节 = 5 包
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = 0.1
	}

	text, err := recognizer.Recognize(context.Background(), samples, 16000)
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("text = %q", text)
	}

	mu.Lock()
	defer mu.Unlock()
	if packets != 5 {
		t.Fatalf("expected 5 audio packets, got %d", packets)
	}
	if request.Audio.Rate != 16000 || request.Audio.Format != "pcm" || request.Audio.Language != "en-US" {
		t.Fatalf("unexpected audio request: %+v", request.Audio)
	}
}

func TestVolcengineRecognizerSurfacesAPIError(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.ReadMessage()
		reply := []byte(`{"code":45000000,"message":"invalid audio"}`)
		out := &frame{Type: frameFullServerReply, Serialization: serializeJSON, Payload: reply}
		conn.WriteMessage(websocket.BinaryMessage, out.marshal())
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	recognizer, _ := NewVolcengineRecognizer(testVolcConfig, nil)
	recognizer.endpoint = url
	recognizer.interval = 0

	_, err := recognizer.Recognize(context.Background(), []float32{0.2, 0.3}, 16000)
	if err == nil || !strings.Contains(err.Error(), "45000000") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestVolcengineSynthesizerFallsBackOnResourceMismatch(t *testing.T) {
	var (
		mu        sync.Mutex
		resources []string
	)

	url := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		resource := r.Header.Get("X-Api-Resource-Id")
		mu.Lock()
		resources = append(resources, resource)
		mu.Unlock()

		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		if resource == volcTTSResourceSeed {
			out := &frame{Type: frameError, ErrorCode: 55000000, Payload: []byte("resource ID is mismatched with speaker related resource")}
			conn.WriteMessage(websocket.BinaryMessage, out.marshal())
			return
		}

		audioFrame := &frame{Type: frameAudioOnlyReply, Payload: []byte{0xFF, 0xFB, 0x90, 0x00}}
		conn.WriteMessage(websocket.BinaryMessage, audioFrame.marshal())
		done := &frame{
			Type:          frameFullServerReply,
			Flags:         flagWithEvent,
			Serialization: serializeJSON,
			Event:         eventSessionFinished,
			SessionID:     "s",
			Payload:       []byte(`{"code":3000}`),
		}
		conn.WriteMessage(websocket.BinaryMessage, done.marshal())
	})

	synth, err := NewVolcengineSynthesizer(testVolcConfig, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	synth.endpoint = url

	data, format, err := synth.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if format != "mp3" || len(data) != 4 {
		t.Fatalf("unexpected audio: format=%s len=%d", format, len(data))
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{volcTTSResourceSeed, volcTTSResourceDefault}
	if !reflect.DeepEqual(resources, want) {
		t.Fatalf("resources tried = %v, want %v", resources, want)
	}
}

func TestVolcengineSynthesizerRejectsEmptyText(t *testing.T) {
	synth, _ := NewVolcengineSynthesizer(testVolcConfig, nil)
	if _, _, err := synth.Synthesize(context.Background(), "  "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}
