package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer mimics the STT server: audio bytes are echoed as the
// transcript, "silence" gets no reply and "boom" gets an error message.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(HealthStatus{Status: "healthy", Model: "Faster-Whisper (tiny)"})
	})
	mux.HandleFunc("/ws/stt", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var meta map[string]any
			if err := conn.ReadJSON(&meta); err != nil {
				return
			}
			mt, audio, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				_ = conn.WriteJSON(map[string]any{"type": "error", "message": "expected binary frame"})
				continue
			}
			switch text := string(audio); text {
			case "silence":
			case "boom":
				_ = conn.WriteJSON(map[string]any{"type": "error", "message": "Model not loaded on server"})
			default:
				_ = conn.WriteJSON(map[string]any{
					"type": "stt_result",
					"data": map[string]any{
						"finalText":     text,
						"fasterWhisper": map[string]any{"text": text, "confidence": 0.95},
						"speaker":       meta["speaker"],
						"language":      "ko",
					},
				})
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/stt"
}

func dial(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, wsURL(srv), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTranscribe(t *testing.T) {
	srv := fakeServer(t)
	c := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.Transcribe(ctx, Meta{Speaker: Speaker{Type: "remote", Name: "Kim"}, SampleRate: 16000}, []byte("안녕하세요"))
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요", res.Text)
	assert.Equal(t, "ko", res.Language)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.Equal(t, "Kim", res.Speaker.Name)
}

func TestTranscribe_DefaultSpeaker(t *testing.T) {
	c := dial(t, fakeServer(t))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.Transcribe(ctx, Meta{}, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "unknown", res.Speaker.Type)
}

func TestTranscribe_ServerError(t *testing.T) {
	c := dial(t, fakeServer(t))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Transcribe(ctx, Meta{}, []byte("boom"))
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Model not loaded on server", serr.Message)
}

func TestTranscribe_SilenceTimesOut(t *testing.T) {
	c := dial(t, fakeServer(t))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Transcribe(ctx, Meta{}, []byte("silence"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResultsStream(t *testing.T) {
	c := dial(t, fakeServer(t))
	ctx := context.Background()
	for _, chunk := range []string{"one", "silence", "two"} {
		require.NoError(t, c.Send(ctx, Meta{}, []byte(chunk)))
	}
	var got []string
	for len(got) < 2 {
		select {
		case res := <-c.Results():
			got = append(got, res.Text)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestClose(t *testing.T) {
	c := dial(t, fakeServer(t))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case _, ok := <-c.Results():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("results not closed")
	}
	assert.ErrorIs(t, c.Send(context.Background(), Meta{}, []byte("x")), ErrClosed)
}

func TestHealth(t *testing.T) {
	srv := fakeServer(t)
	hs, err := Health(context.Background(), HTTPBase(wsURL(srv)))
	require.NoError(t, err)
	assert.True(t, hs.Healthy())
	assert.Equal(t, "Faster-Whisper (tiny)", hs.Model)

	_, err = Health(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestHTTPBase(t *testing.T) {
	assert.Equal(t, "http://localhost:8000", HTTPBase("ws://localhost:8000/ws/stt"))
	assert.Equal(t, "https://stt.example.com", HTTPBase("wss://stt.example.com/ws/stt"))
	assert.Equal(t, "http://h:1", HTTPBase("http://h:1/x"))
	assert.Equal(t, "https://user:pw@stt.example.com:8443", HTTPBase("wss://user:pw@stt.example.com:8443/ws/stt?lang=ko#frag"))
	assert.Equal(t, "http://localhost:8000", HTTPBase("ws://localhost:8000?token=abc"))
	assert.Equal(t, "localhost:8000", HTTPBase("localhost:8000"))
}
