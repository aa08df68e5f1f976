package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// alsaSink plays synthesized WAV buffers through aplay. It satisfies the
// piper provider's Sink contract: Play blocks until playback finishes or
// ctx is cancelled.
type alsaSink struct{}

func (alsaSink) Play(ctx context.Context, wav []byte) error {
	cmd := exec.CommandContext(ctx, "aplay", "-q")
	cmd.Stdin = bytes.NewReader(wav)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("aplay: %w", err)
	}
	return nil
}
