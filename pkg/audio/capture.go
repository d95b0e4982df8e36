package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

const (
	// CaptureSampleRate is the fixed microphone capture rate.
	CaptureSampleRate = 16000
	// BlockSize is the number of samples per outbound frame.
	BlockSize = 4096
	// CaptureMimeType tags outbound frames for the realtime channel.
	CaptureMimeType = "audio/pcm;rate=16000"
)

// blockAssembler batches incoming samples into fixed-size blocks and emits
// each full block exactly once. A trailing partial block is never emitted.
type blockAssembler struct {
	block []float32
	fill  int
	emit  func([]float32)
}

func newBlockAssembler(size int, emit func([]float32)) *blockAssembler {
	return &blockAssembler{block: make([]float32, size), emit: emit}
}

func (a *blockAssembler) Write(samples []float32) {
	for len(samples) > 0 {
		n := copy(a.block[a.fill:], samples)
		a.fill += n
		samples = samples[n:]
		if a.fill == len(a.block) {
			full := make([]float32, len(a.block))
			copy(full, a.block)
			a.fill = 0
			a.emit(full)
		}
	}
}

// Recorder captures microphone audio at 16kHz mono, batches it into
// 4096-sample blocks, and delivers each block to the callback as a base64
// s16le frame. One recorder owns the device exclusively; Start while
// running is a no-op and Stop is idempotent.
type Recorder struct {
	onData func(base64 string)

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	started bool
}

// NewRecorder creates a recorder delivering encoded frames to onData. The
// callback runs on the audio device's thread and must not block.
func NewRecorder(onData func(base64 string)) *Recorder {
	return &Recorder{onData: onData}
}

// Start acquires the microphone and begins emitting frames. Every resource
// acquired before a failure is released again, so a denied device leaves
// nothing held.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	assembler := newBlockAssembler(BlockSize, func(block []float32) {
		r.onData(EncodeBlock(block))
	})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = CaptureSampleRate
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			assembler.Write(bytesToFloat32(pInputSamples))
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		return fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		return fmt.Errorf("start microphone: %w", err)
	}

	r.ctx = mctx
	r.device = device
	r.started = true
	return nil
}

// Stop releases the microphone. Any partial block is dropped. Safe to call
// when not started.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	_ = r.device.Stop()
	r.device.Uninit()
	_ = r.ctx.Uninit()
	r.device = nil
	r.ctx = nil
	r.started = false
}

// Recording reports whether the microphone is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}
