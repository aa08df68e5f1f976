package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x01, 0x02}, 160) // 10 ms at 16 kHz mono
	wav := EncodeWAV(pcm, DefaultFormat)

	if len(wav) != wavHeaderSize+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), wavHeaderSize+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", rate)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Fatalf("channels = %d, want 1", ch)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 16 {
		t.Fatalf("bit depth = %d, want 16", bits)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := []byte{0x00, 0x10, 0xFF, 0x7F, 0x00, 0x80, 0x34, 0x12}
	wav := EncodeWAV(pcm, DefaultFormat)

	got, f, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("pcm = %x, want %x", got, pcm)
	}
	if f != DefaultFormat {
		t.Fatalf("format = %+v, want %+v", f, DefaultFormat)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("definitely not audio data, nope")); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}

func TestPCMToFloat32Mono(t *testing.T) {
	// Two samples: 0 and max positive.
	pcm := []byte{0x00, 0x00, 0xFF, 0x7F}
	samples := PCMToFloat32Mono(pcm, 1)
	if len(samples) != 2 {
		t.Fatalf("len = %d, want 2", len(samples))
	}
	if samples[0] != 0 {
		t.Fatalf("samples[0] = %f, want 0", samples[0])
	}
	if samples[1] < 0.99 || samples[1] > 1.0 {
		t.Fatalf("samples[1] = %f, want ≈1.0", samples[1])
	}
}

func TestResampleMono16Halves(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x10, 0x00}, 320)
	out := ResampleMono16(pcm, 32000, 16000)
	if len(out) != len(pcm)/2 {
		t.Fatalf("len = %d, want %d", len(out), len(pcm)/2)
	}
}

func TestResampleMono16NoOp(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	out := ResampleMono16(pcm, 16000, 16000)
	if !bytes.Equal(out, pcm) {
		t.Fatal("same-rate resample must return input unchanged")
	}
}
