// Package miniaudio captures frames from the default input device through
// miniaudio.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-recorder/core/audio"
	"github.com/koscakluka/ema-recorder/core/audio/capture"
)

// Source is an audio.FrameSource backed by a miniaudio capture device.
type Source struct {
	// audioContext is only saved to be able to uninitialize it
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	format       audio.Format

	framer *capture.Framer

	mu sync.Mutex
}

func NewSource() (*Source, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	return &Source{audioContext: audioCtx, framer: capture.NewFramer()}, nil
}

// Init opens the capture device. Noise reduction and echo cancellation are
// not available on this backend and are ignored.
func (s *Source) Init(config audio.SourceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		return nil
	}

	format := config.Format
	if format.IsZero() {
		format = audio.GetDefaultFormat()
	}
	if config.NoiseReduction || config.EchoCancellation {
		logger.Debug("input processing requested but not supported by miniaudio",
			"noise_reduction", config.NoiseReduction, "echo_cancellation", config.EchoCancellation)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.Alsa.NoMMap = 1
	deviceConfig.PerformanceProfile = malgo.LowLatency

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatF32) * format.Channels
	device, err := malgo.InitDevice(s.audioContext.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			s.framer.WriteBytes(pInput[:n])
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	s.device = device
	s.format = format
	s.framer.Configure(format, config)
	return nil
}

func (s *Source) Subscribe(onFrame func(audio.Frame)) (unsubscribe func()) {
	return s.framer.Subscribe(onFrame)
}

func (s *Source) Start(_ context.Context) (audio.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return audio.Format{}, fmt.Errorf("device not initialized")
	} else if s.device.IsStarted() {
		return s.format, nil
	}

	s.framer.Reset()
	if err := s.device.Start(); err != nil {
		return audio.Format{}, fmt.Errorf("failed to start capture device: %w", err)
	}
	return s.format, nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !s.device.IsStarted() {
		return nil
	}

	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return nil
}

// Close releases the device and the audio context.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	_ = s.audioContext.Uninit()
	s.audioContext.Free()
}
