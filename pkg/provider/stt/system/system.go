// Package system provides the platform speech recognizer, consumed over a
// local WebSocket event stream.
//
// The platform speech service (the device's own recognition daemon) exposes a
// small protocol on a loopback socket: the client dials /listen with a
// language query parameter and receives JSON events until either a final
// transcript or an error arrives. This mirrors how cloud streaming
// recognizers behave, so the recognizer maps the wire events directly onto
// [stt.Event] values.
//
// Availability is probed via the service's /health endpoint with a short
// timeout; a device without the daemon installed reports Available() == false
// and the router picks another path.
package system

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

	"github.com/coder/websocket"

	"github.com/serin-ai/serin/pkg/provider/stt"
)

const (
	defaultProbeTimeout = 2 * time.Second

	// eventChanBuf absorbs partial bursts so the read loop never blocks on a
	// slow consumer.
	eventChanBuf = 32
)

// Compile-time assertion that Recognizer satisfies stt.SystemRecognizer.
var _ stt.SystemRecognizer = (*Recognizer)(nil)

// wireEvent is the JSON structure the platform speech service emits.
type wireEvent struct {
	Type  string `json:"type"` // ready | partial | end_of_speech | final | error
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"` // no_service | no_speech | permission_denied
}

// Recognizer implements stt.SystemRecognizer over the platform speech
// service's WebSocket API.
type Recognizer struct {
	baseURL      string
	probeTimeout time.Duration
	httpClient   *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc // active session, nil when idle
}

// Option is a functional option for Recognizer.
type Option func(*Recognizer)

// WithProbeTimeout overrides the availability probe timeout (default 2s).
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Recognizer) { r.probeTimeout = d }
}

// New creates a Recognizer talking to the speech service at baseURL
// (e.g. "http://127.0.0.1:7073").
func New(baseURL string, opts ...Option) (*Recognizer, error) {
	if baseURL == "" {
		return nil, errors.New("system: baseURL must not be empty")
	}
	r := &Recognizer{
		baseURL:      strings.TrimRight(baseURL, "/"),
		probeTimeout: defaultProbeTimeout,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Available implements stt.SystemRecognizer by probing the service's health
// endpoint.
func (r *Recognizer) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StartListening implements stt.SystemRecognizer. It dials the service and
// translates wire events until a terminal event arrives.
func (r *Recognizer) StartListening(ctx context.Context, language string) (<-chan stt.Event, error) {
	wsURL, err := r.listenURL(language)
	if err != nil {
		return nil, fmt.Errorf("system: build URL: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stt.ErrNoService, err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = cancel
	r.mu.Unlock()

	events := make(chan stt.Event, eventChanBuf)
	go r.readLoop(sessCtx, conn, events)
	return events, nil
}

// Cancel implements stt.SystemRecognizer.
func (r *Recognizer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Recognizer) listenURL(language string) (string, error) {
	u, err := url.Parse(r.baseURL + "/listen")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if language != "" {
		q := u.Query()
		q.Set("language", language)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// readLoop receives wire events and dispatches them until a terminal event,
// read failure, or context cancellation.
func (r *Recognizer) readLoop(ctx context.Context, conn *websocket.Conn, events chan<- stt.Event) {
	defer close(events)
	defer conn.Close(websocket.StatusNormalClosure, "session closed")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // cancelled, no terminal event
			}
			events <- stt.Event{Kind: stt.EventError, Err: fmt.Errorf("%w: %v", stt.ErrNoService, err)}
			return
		}

		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			events <- stt.Event{Kind: stt.EventError, Err: fmt.Errorf("system: malformed event: %w", err)}
			return
		}

		switch ev.Type {
		case "ready":
			events <- stt.Event{Kind: stt.EventReadyForSpeech}
		case "partial":
			events <- stt.Event{Kind: stt.EventPartial, Text: ev.Text}
		case "end_of_speech":
			events <- stt.Event{Kind: stt.EventEndOfSpeech}
		case "final":
			events <- stt.Event{Kind: stt.EventFinal, Text: ev.Text}
			return
		case "error":
			events <- stt.Event{Kind: stt.EventError, Err: classify(ev)}
			return
		}
	}
}

// classify maps service error codes onto the sentinel errors the router's
// fallback policy keys on.
func classify(ev wireEvent) error {
	switch ev.Code {
	case "no_service":
		return fmt.Errorf("%w: %s", stt.ErrNoService, ev.Error)
	case "no_speech":
		return fmt.Errorf("%w: %s", stt.ErrNoSpeech, ev.Error)
	case "permission_denied":
		return fmt.Errorf("%w: %s", stt.ErrPermission, ev.Error)
	default:
		return fmt.Errorf("system: recognition failed: %s", ev.Error)
	}
}
