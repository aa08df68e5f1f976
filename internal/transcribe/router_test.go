package transcribe

import (
	"context"
	"errors"
	"testing"

	"github.com/serin-ai/serin/pkg/provider/stt"
	"github.com/serin-ai/serin/pkg/provider/stt/mock"
)

func staticAudio(buf []byte) AudioFunc {
	return func(context.Context) ([]byte, error) { return buf, nil }
}

func TestSelectPolicy(t *testing.T) {
	tests := []struct {
		name      string
		preferred stt.Strategy
		offline   bool
		system    bool
		want      stt.Strategy
		wantErr   error
	}{
		{"cloud always wins", stt.StrategyCloud, false, false, stt.StrategyCloud, nil},
		{"offline ready", stt.StrategyOffline, true, true, stt.StrategyOffline, nil},
		{"system available", stt.StrategySystem, false, true, stt.StrategySystem, nil},
		{"offline falls back to system", stt.StrategyOffline, false, true, stt.StrategySystem, nil},
		{"system falls back to offline", stt.StrategySystem, true, false, stt.StrategyOffline, nil},
		{"nothing available", stt.StrategySystem, false, false, "", ErrNoRecognizer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(RouterConfig{
				Offline:   &mock.Offline{ReadyVal: tt.offline},
				Cloud:     &mock.Cloud{},
				System:    &mock.System{AvailableVal: tt.system},
				Preferred: tt.preferred,
				Language:  "en",
			})
			got, err := r.Select()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Select error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Select = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectReportsModelDownload(t *testing.T) {
	r := NewRouter(RouterConfig{
		Offline:   &mock.Offline{ReadyVal: false, NeedsDownload: true},
		System:    &mock.System{AvailableVal: false},
		Preferred: stt.StrategyOffline,
		Language:  "de",
	})
	if _, err := r.Select(); !errors.Is(err, ErrModelDownload) {
		t.Errorf("Select = %v, want ErrModelDownload", err)
	}
}

func TestTurnOfflinePath(t *testing.T) {
	offline := &mock.Offline{ReadyVal: true, Text: " turn on the lights "}
	r := NewRouter(RouterConfig{
		Offline:   offline,
		Preferred: stt.StrategyOffline,
		Language:  "en",
	})

	text, strategy, err := r.Turn(context.Background(), staticAudio([]byte{1, 2, 3}), nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if strategy != stt.StrategyOffline {
		t.Errorf("strategy = %q", strategy)
	}
	if text != "turn on the lights" {
		t.Errorf("text = %q", text)
	}
	if len(offline.TranscribeCalls) != 1 {
		t.Errorf("offline called %d times, want 1", len(offline.TranscribeCalls))
	}
}

func TestTurnCloudPassesLanguageHint(t *testing.T) {
	cloud := &mock.Cloud{Text: "hello"}
	r := NewRouter(RouterConfig{
		Cloud:     cloud,
		Preferred: stt.StrategyCloud,
		Language:  "de",
	})
	if _, _, err := r.Turn(context.Background(), staticAudio([]byte{1}), nil); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if len(cloud.Calls) != 1 || cloud.Calls[0] != "de" {
		t.Errorf("cloud hints = %v, want [de]", cloud.Calls)
	}
}

func TestTurnCloudErrorNoFallback(t *testing.T) {
	wantErr := errors.New("invalid api key")
	r := NewRouter(RouterConfig{
		Offline:   &mock.Offline{ReadyVal: true, Text: "fallback text"},
		Cloud:     &mock.Cloud{Err: wantErr},
		Preferred: stt.StrategyCloud,
	})
	_, _, err := r.Turn(context.Background(), staticAudio([]byte{1}), nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("Turn = %v, want cloud error surfaced", err)
	}
}

func TestTurnSystemEmitsPartialsAndFinal(t *testing.T) {
	system := &mock.System{
		AvailableVal: true,
		Events: []stt.Event{
			{Kind: stt.EventReadyForSpeech},
			{Kind: stt.EventPartial, Text: "set a"},
			{Kind: stt.EventPartial, Text: "set a timer"},
			{Kind: stt.EventEndOfSpeech},
			{Kind: stt.EventFinal, Text: "set a timer for five minutes"},
		},
	}
	r := NewRouter(RouterConfig{
		System:    system,
		Preferred: stt.StrategySystem,
	})

	var partials []string
	text, strategy, err := r.Turn(context.Background(), nil, func(ev stt.Event) {
		if ev.Kind == stt.EventPartial {
			partials = append(partials, ev.Text)
		}
	})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if strategy != stt.StrategySystem {
		t.Errorf("strategy = %q", strategy)
	}
	if text != "set a timer for five minutes" {
		t.Errorf("text = %q", text)
	}
	if len(partials) != 2 {
		t.Errorf("got %d partials, want 2", len(partials))
	}
}

func TestTurnSystemServiceFailureRetriesOffline(t *testing.T) {
	system := &mock.System{
		AvailableVal: true,
		Events:       []stt.Event{{Kind: stt.EventError, Err: stt.ErrNoService}},
	}
	offline := &mock.Offline{ReadyVal: true, Text: "recovered offline"}
	r := NewRouter(RouterConfig{
		Offline:   offline,
		System:    system,
		Preferred: stt.StrategySystem,
	})

	text, strategy, err := r.Turn(context.Background(), staticAudio([]byte{9}), nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if strategy != stt.StrategyOffline {
		t.Errorf("strategy = %q, want offline after service failure", strategy)
	}
	if text != "recovered offline" {
		t.Errorf("text = %q", text)
	}
	if len(offline.TranscribeCalls) != 1 {
		t.Errorf("offline retried %d times, want exactly 1", len(offline.TranscribeCalls))
	}
}

func TestTurnSystemPermissionErrorNotRetried(t *testing.T) {
	system := &mock.System{
		AvailableVal: true,
		Events:       []stt.Event{{Kind: stt.EventError, Err: stt.ErrPermission}},
	}
	offline := &mock.Offline{ReadyVal: true, Text: "should not be used"}
	r := NewRouter(RouterConfig{
		Offline:   offline,
		System:    system,
		Preferred: stt.StrategySystem,
	})

	_, _, err := r.Turn(context.Background(), staticAudio(nil), nil)
	if !errors.Is(err, stt.ErrPermission) {
		t.Fatalf("Turn = %v, want ErrPermission", err)
	}
	if len(offline.TranscribeCalls) != 0 {
		t.Error("offline was retried on a permission error")
	}
}

func TestTurnNeverReturnsEmptySuccess(t *testing.T) {
	r := NewRouter(RouterConfig{
		Offline:   &mock.Offline{ReadyVal: true, Text: "   "},
		Preferred: stt.StrategyOffline,
	})
	_, _, err := r.Turn(context.Background(), staticAudio([]byte{1}), nil)
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Errorf("Turn = %v, want ErrNoSpeech for blank transcript", err)
	}
}

// multilingualOffline extends the offline mock with a secondary model.
type multilingualOffline struct {
	mock.Offline
	secondaryReady bool
	secondaryText  string
	secondaryErr   error
}

func (m *multilingualOffline) SecondaryReady() bool { return m.secondaryReady }

func (m *multilingualOffline) TranscribeSecondary(context.Context, []byte) (string, error) {
	return m.secondaryText, m.secondaryErr
}

func TestTurnMultilingualMerge(t *testing.T) {
	tests := []struct {
		name      string
		primary   string
		secondary string
		want      string
	}{
		{"secondary much longer wins", "ja", "yes please set an alarm for seven", "yes please set an alarm for seven"},
		{"comparable lengths prefer primary", "wie ist das Wetter heute", "how is the weather", "wie ist das Wetter heute"},
		{"primary much longer wins", "bitte mach das Licht im Wohnzimmer an", "light", "bitte mach das Licht im Wohnzimmer an"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offline := &multilingualOffline{
				Offline:        mock.Offline{ReadyVal: true, Text: tt.primary},
				secondaryReady: true,
				secondaryText:  tt.secondary,
			}
			r := NewRouter(RouterConfig{
				Offline:      offline,
				Preferred:    stt.StrategyOffline,
				Multilingual: true,
			})
			text, _, err := r.Turn(context.Background(), staticAudio([]byte{1}), nil)
			if err != nil {
				t.Fatalf("Turn: %v", err)
			}
			if text != tt.want {
				t.Errorf("merged = %q, want %q", text, tt.want)
			}
		})
	}
}

func TestTurnMultilingualSecondaryFailureKeepsPrimary(t *testing.T) {
	offline := &multilingualOffline{
		Offline:        mock.Offline{ReadyVal: true, Text: "primary result"},
		secondaryReady: true,
		secondaryErr:   errors.New("model crashed"),
	}
	r := NewRouter(RouterConfig{
		Offline:      offline,
		Preferred:    stt.StrategyOffline,
		Multilingual: true,
	})
	text, _, err := r.Turn(context.Background(), staticAudio([]byte{1}), nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if text != "primary result" {
		t.Errorf("text = %q", text)
	}
}

func TestTurnAppliesCorrector(t *testing.T) {
	r := NewRouter(RouterConfig{
		Offline:   &mock.Offline{ReadyVal: true, Text: "call serren please"},
		Preferred: stt.StrategyOffline,
		Corrector: NewCorrector([]string{"Serin"}),
	})
	text, _, err := r.Turn(context.Background(), staticAudio([]byte{1}), nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if text != "call Serin please" {
		t.Errorf("text = %q, want corrected vocabulary", text)
	}
}
