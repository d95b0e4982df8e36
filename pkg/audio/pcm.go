// Package audio implements the microphone capture and PCM playback
// pipelines for realtime voice sessions: 16kHz mono capture encoded to
// base64 s16le frames, and 24kHz mono s16le playback.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
)

// FloatTo16BitPCM converts float32 samples in [-1, 1] to little-endian
// 16-bit signed PCM. Samples are clamped first; negative values scale by
// 32768 and non-negative by 32767 so both ends of the int16 range are
// reachable.
func FloatTo16BitPCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample < -1 {
			sample = -1
		} else if sample > 1 {
			sample = 1
		}
		var value int16
		if sample < 0 {
			value = int16(sample * 32768)
		} else {
			value = int16(sample * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(value))
	}
	return out
}

// EncodeBlock converts one block of float32 samples to its base64 s16le
// wire representation.
func EncodeBlock(samples []float32) string {
	return base64.StdEncoding.EncodeToString(FloatTo16BitPCM(samples))
}

// bytesToFloat32 reinterprets little-endian float32 sample bytes. A trailing
// partial sample is ignored.
func bytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
