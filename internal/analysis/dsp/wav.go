// SPDX-License-Identifier: MIT

// Package dsp measures audio features from decoded WAV signals: duration,
// tempo with beat positions, and the chroma distribution. The measures feed
// the analysis store; everything here is deterministic math over sample
// buffers, no I/O beyond the decoder's reader.
package dsp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Signal is a decoded mono waveform.
type Signal struct {
	Rate    int
	Samples []float64
}

// Duration returns the signal length in seconds.
func (s *Signal) Duration() float64 {
	if s.Rate == 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.Rate)
}

// WAV format tags. Extensible headers resolve to one of the first two via
// the leading bytes of their subformat GUID.
const (
	formatPCM        = 0x0001
	formatIEEEFloat  = 0x0003
	formatExtensible = 0xFFFE
)

// DecodeWAV reads a RIFF/WAVE stream and returns the mono-mixed signal.
// PCM 8/16/24/32-bit integer and 32/64-bit float samples are accepted.
func DecodeWAV(r io.Reader) (*Signal, error) {
	br := bufio.NewReader(r)

	var riff [12]byte
	if _, err := io.ReadFull(br, riff[:]); err != nil {
		return nil, fmt.Errorf("dsp: riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("dsp: not a wav stream")
	}

	var (
		format    uint16
		channels  int
		rate      int
		bits      int
		haveFmt   bool
		frameSize int
	)

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(br, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("dsp: no data chunk")
			}
			return nil, fmt.Errorf("dsp: chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(br, body); err != nil {
				return nil, fmt.Errorf("dsp: fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, fmt.Errorf("dsp: fmt chunk too short (%d bytes)", len(body))
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			rate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = int(binary.LittleEndian.Uint16(body[14:16]))
			if format == formatExtensible {
				// cbSize(2) + validBits(2) + channelMask(4) + GUID.
				if len(body) < 26 {
					return nil, fmt.Errorf("dsp: extensible fmt chunk too short")
				}
				format = binary.LittleEndian.Uint16(body[24:26])
			}
			if size%2 == 1 {
				_, _ = br.Discard(1)
			}
			haveFmt = true
			frameSize = channels * bits / 8

		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("dsp: data chunk before fmt chunk")
			}
			if channels < 1 || rate < 1 || frameSize < 1 {
				return nil, fmt.Errorf("dsp: invalid format (%d ch, %d Hz, %d bit)", channels, rate, bits)
			}
			return decodeSamples(br, format, channels, rate, bits, int(size))

		default:
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, br, skip); err != nil {
				return nil, fmt.Errorf("dsp: skip %s chunk: %w", id, err)
			}
		}
	}
}

func decodeSamples(r io.Reader, format uint16, channels, rate, bits, size int) (*Signal, error) {
	sampleSize := bits / 8
	frameSize := channels * sampleSize
	frames := size / frameSize

	conv, err := sampleConverter(format, bits)
	if err != nil {
		return nil, err
	}

	samples := make([]float64, 0, frames)
	buf := make([]byte, frameSize)
	for i := 0; i < frames; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			// Tolerate a short data chunk but not a torn frame mid-file.
			if err == io.EOF && i > 0 {
				break
			}
			return nil, fmt.Errorf("dsp: sample data: %w", err)
		}
		var sum float64
		for c := 0; c < channels; c++ {
			sum += conv(buf[c*sampleSize:])
		}
		samples = append(samples, sum/float64(channels))
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("dsp: empty data chunk")
	}
	return &Signal{Rate: rate, Samples: samples}, nil
}

// sampleConverter returns a function decoding one sample into [-1, 1].
func sampleConverter(format uint16, bits int) (func([]byte) float64, error) {
	switch {
	case format == formatPCM && bits == 8:
		return func(b []byte) float64 {
			return (float64(b[0]) - 128) / 128
		}, nil
	case format == formatPCM && bits == 16:
		return func(b []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
		}, nil
	case format == formatPCM && bits == 24:
		return func(b []byte) float64 {
			v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}
			return float64(v) / 8388608
		}, nil
	case format == formatPCM && bits == 32:
		return func(b []byte) float64 {
			return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
		}, nil
	case format == formatIEEEFloat && bits == 32:
		return func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}, nil
	case format == formatIEEEFloat && bits == 64:
		return func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}, nil
	default:
		return nil, fmt.Errorf("dsp: unsupported sample format (tag %#x, %d bit)", format, bits)
	}
}
