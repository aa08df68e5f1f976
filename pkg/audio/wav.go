package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// wavHeaderSize is the size of the canonical 44-byte PCM WAV header this
// package reads and writes. Encoders that emit extra chunks are handled by
// DecodeWAV's chunk walk.
const wavHeaderSize = 44

// EncodeWAV frames raw little-endian PCM samples with a canonical RIFF/WAVE
// header. The PCM data is referenced, not copied.
func EncodeWAV(pcm []byte, f CaptureFormat) []byte {
	byteRate := f.SampleRate * f.Channels * f.BitDepth / 8
	blockAlign := f.Channels * f.BitDepth / 8

	out := make([]byte, wavHeaderSize, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM format tag
	binary.LittleEndian.PutUint16(out[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(f.BitDepth))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))

	return append(out, pcm...)
}

// DecodeWAV extracts the raw PCM payload and format from a WAV buffer.
// Only uncompressed PCM is supported. Chunks other than "fmt " and "data"
// are skipped, so buffers produced by encoders that add LIST/INFO chunks
// still decode.
func DecodeWAV(wav []byte) ([]byte, CaptureFormat, error) {
	var f CaptureFormat
	if len(wav) < wavHeaderSize || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, f, errors.New("audio: not a RIFF/WAVE buffer")
	}

	var pcm []byte
	haveFmt := false
	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(wav) {
			return nil, f, fmt.Errorf("audio: chunk %q overruns buffer", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, f, errors.New("audio: fmt chunk too short")
			}
			if tag := binary.LittleEndian.Uint16(wav[body : body+2]); tag != 1 {
				return nil, f, fmt.Errorf("audio: unsupported format tag %d (want PCM)", tag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			f.BitDepth = int(binary.LittleEndian.Uint16(wav[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = wav[body : body+size]
		}
		// Chunks are word-aligned.
		pos = body + size + size%2
	}

	if !haveFmt || pcm == nil {
		return nil, f, errors.New("audio: missing fmt or data chunk")
	}
	return pcm, f, nil
}

// PCMToFloat32Mono converts 16-bit little-endian PCM to normalised float32
// samples in [-1, 1], downmixing multi-channel input by averaging.
func PCMToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	bytesPerFrame := 2 * channels
	frames := len(pcm) / bytesPerFrame
	out := make([]float32, frames)
	for i := range frames {
		var sum int32
		for c := range channels {
			off := i*bytesPerFrame + c*2
			sum += int32(int16(pcm[off]) | int16(pcm[off+1])<<8)
		}
		out[i] = float32(sum/int32(channels)) / 32768.0
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. If srcRate == dstRate the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
