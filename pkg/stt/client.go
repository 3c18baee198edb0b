// Package stt is a client for a streaming speech-to-text websocket server.
//
// Each audio chunk is sent as a JSON metadata text frame followed by one
// binary frame holding the audio. The server answers with a JSON message of
// type "stt_result" or "error". Chunks without recognizable speech get no
// reply at all, so results are read asynchronously.
package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrClosed is returned after the connection has been closed.
var ErrClosed = errors.New("stt: connection closed")

// Speaker identifies who is talking in a chunk.
type Speaker struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Meta is the metadata frame sent ahead of each audio chunk.
type Meta struct {
	Speaker    Speaker `json:"speaker"`
	SampleRate int     `json:"sampleRate,omitempty"`
	Format     string  `json:"format,omitempty"`
}

// Result is one recognized utterance.
type Result struct {
	Text       string
	Confidence float64
	Speaker    Speaker
	Language   string
	ReceivedAt time.Time
}

type message struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type resultData struct {
	FinalText     string `json:"finalText"`
	FasterWhisper struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"fasterWhisper"`
	Speaker  Speaker `json:"speaker"`
	Language string  `json:"language"`
}

// ServerError is an error message reported by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "stt server: " + e.Message }

// Client is a connection to the STT server. Send is safe for concurrent use.
type Client struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex
	results chan Result
	errs    chan error

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
	readErr   error
}

// Dial connects to the websocket endpoint, e.g. ws://host:8000/ws/stt.
func Dial(ctx context.Context, endpoint string, log zerolog.Logger) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	c := &Client{
		conn:    conn,
		log:     log.With().Str("component", "stt").Logger(),
		results: make(chan Result, 16),
		errs:    make(chan error, 16),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Results delivers recognized utterances. It is closed when the
// connection ends.
func (c *Client) Results() <-chan Result { return c.results }

// Errors delivers server-reported errors. Dropped when nobody is reading.
func (c *Client) Errors() <-chan error { return c.errs }

// Err returns the error that ended the read loop, if any.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

// Send writes one chunk: the metadata frame then the audio frame.
func (c *Client) Send(ctx context.Context, meta Meta, audio []byte) error {
	select {
	case <-c.closing:
		return ErrClosed
	case <-c.done:
		return ErrClosed
	default:
	}
	if meta.Speaker.Type == "" {
		meta.Speaker.Type = "unknown"
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteJSON(meta); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

// Transcribe sends a chunk and waits for the next result or server error.
// A silent chunk produces no reply, so ctx should carry a deadline.
func (c *Client) Transcribe(ctx context.Context, meta Meta, audio []byte) (*Result, error) {
	if err := c.Send(ctx, meta, audio); err != nil {
		return nil, err
	}
	select {
	case res, ok := <-c.results:
		if !ok {
			if err := c.Err(); err != nil {
				return nil, err
			}
			return nil, ErrClosed
		}
		return &res, nil
	case err := <-c.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a normal close frame and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer func() {
		close(c.results)
		close(c.done)
	}()

	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.closing:
				return
			default:
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				c.readErr = fmt.Errorf("read: %w", err)
				c.log.Warn().Err(err).Msg("stt read loop ended")
			}
			return
		}

		switch msg.Type {
		case "stt_result":
			var data resultData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.log.Warn().Err(err).Msg("bad stt_result payload")
				continue
			}
			text := strings.TrimSpace(data.FinalText)
			if text == "" {
				text = strings.TrimSpace(data.FasterWhisper.Text)
			}
			if text == "" {
				continue
			}
			res := Result{
				Text:       text,
				Confidence: data.FasterWhisper.Confidence,
				Speaker:    data.Speaker,
				Language:   data.Language,
				ReceivedAt: time.Now(),
			}
			select {
			case c.results <- res:
			case <-c.closing:
				return
			}
		case "error":
			err := &ServerError{Message: msg.Message}
			c.log.Warn().Err(err).Msg("stt server error")
			select {
			case c.errs <- err:
			default:
			}
		default:
			c.log.Debug().Str("type", msg.Type).Msg("ignoring stt message")
		}
	}
}

// HealthStatus is the server's /health response.
type HealthStatus struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// Healthy reports whether the server has a model loaded.
func (h *HealthStatus) Healthy() bool { return h.Status == "healthy" }

// Health queries GET /health on the server's HTTP base URL.
func Health(ctx context.Context, baseURL string) (*HealthStatus, error) {
	var hs HealthStatus
	resp, err := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10 * time.Second).
		R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&hs).
		Get("/health")
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("health: unexpected status %s", resp.Status())
	}
	return &hs, nil
}

// HTTPBase converts a websocket endpoint URL into the server's HTTP base
// URL, keeping scheme, userinfo and host. Unparsable input is returned as is.
func HTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return wsURL
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	}
	u.Path, u.RawPath = "", ""
	u.RawQuery, u.Fragment, u.RawFragment = "", "", ""
	u.ForceQuery = false
	return u.String()
}
