package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/serin-ai/serin/pkg/audio"
)

// micCapture implements audio.Capture by recording raw PCM from the default
// ALSA device via arecord. Stop frames the accumulated samples as WAV in
// [audio.DefaultFormat], which is what every recognizer backend expects.
type micCapture struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	buf  *bytes.Buffer
	done chan struct{}
}

var _ audio.Capture = (*micCapture)(nil)

func newMicCapture() *micCapture { return &micCapture{} }

func (m *micCapture) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil {
		return errors.New("capture: already recording")
	}

	f := audio.DefaultFormat
	cmd := exec.CommandContext(ctx, "arecord",
		"-q",
		"-f", "S16_LE",
		"-r", strconv.Itoa(f.SampleRate),
		"-c", strconv.Itoa(f.Channels),
		"-t", "raw",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	buf := &bytes.Buffer{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		io.Copy(buf, stdout) //nolint:errcheck // pipe closes when arecord exits
	}()

	m.cmd = cmd
	m.buf = buf
	m.done = done
	return nil
}

func (m *micCapture) Stop() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil {
		return nil, errors.New("capture: not recording")
	}

	// SIGINT lets arecord flush its final period before exiting.
	m.cmd.Process.Signal(syscall.SIGINT) //nolint:errcheck
	<-m.done
	m.cmd.Wait() //nolint:errcheck // nonzero exit after a signal is expected

	pcm := m.buf.Bytes()
	m.cmd, m.buf, m.done = nil, nil, nil
	if len(pcm) == 0 {
		return nil, errors.New("capture: no audio recorded")
	}
	return audio.EncodeWAV(pcm, audio.DefaultFormat), nil
}

func (m *micCapture) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil {
		return
	}
	m.cmd.Process.Kill() //nolint:errcheck
	<-m.done
	m.cmd.Wait() //nolint:errcheck
	m.cmd, m.buf, m.done = nil, nil, nil
}

func (m *micCapture) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmd != nil
}
