// Command ema-recorder records speech from the default input device and
// writes one audio file per utterance.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	recorder "github.com/koscakluka/ema-recorder/core"
	"github.com/koscakluka/ema-recorder/core/audio"
	"github.com/koscakluka/ema-recorder/core/audio/miniaudio"
	"github.com/koscakluka/ema-recorder/core/audio/portaudio"
	"github.com/koscakluka/ema-recorder/core/codecs/shine"
	"github.com/koscakluka/ema-recorder/core/codecs/wav"
	"github.com/koscakluka/ema-recorder/core/events"
	"github.com/koscakluka/ema-recorder/core/utterance"
	"github.com/koscakluka/ema-recorder/internal/config"
	"github.com/koscakluka/ema-recorder/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName    = "ema-recorder"
	serviceVersion = "0.1.0"

	shutdownTimeout = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("ema-recorder stopped", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	provider, err := telemetry.Init(serviceName, serviceVersion)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut telemetry down", "error", err)
		}
	}()

	source, closeSource, err := newFrameSource(cfg.Capture)
	if err != nil {
		return err
	}
	defer closeSource()

	rec, err := recorder.NewRecorder(cfg.Recorder, recorderOptions(cfg, source, logger)...)
	if err != nil {
		return err
	}
	rec.Subscribe(logEvents(logger))

	group, ctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		server := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           provider.Handler(),
			ReadHeaderTimeout: cfg.Metrics.ReadHeaderTimeout,
		}
		group.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		return record(ctx, rec, logger)
	})

	return group.Wait()
}

// record keeps the recorder running until ctx is done, then lets the last
// utterance finish.
func record(ctx context.Context, rec *recorder.Recorder, logger *slog.Logger) error {
	if err := rec.StartRecording(ctx); err != nil {
		return errors.Join(err, rec.Cleanup())
	}
	logger.Info("recording, press ctrl+c to stop")

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopErr := rec.StopRecording(stopCtx)
	return errors.Join(stopErr, rec.Cleanup())
}

func newFrameSource(cfg config.CaptureConfig) (audio.FrameSource, func(), error) {
	switch cfg.Backend {
	case config.BackendPortaudio:
		source, err := portaudio.NewSource(cfg.BufferSize)
		if err != nil {
			return nil, nil, err
		}
		return source, func() { _ = source.Close() }, nil
	default:
		source, err := miniaudio.NewSource()
		if err != nil {
			return nil, nil, err
		}
		return source, source.Close, nil
	}
}

func encoderFactory(codec string) utterance.EncoderFactory {
	if codec == config.CodecWAV {
		return wav.New
	}
	return shine.New
}

func recorderOptions(cfg *config.Config, source audio.FrameSource, logger *slog.Logger) []recorder.RecorderOption {
	opts := []recorder.RecorderOption{
		recorder.WithFrameSource(source),
		recorder.WithStreamEncoder(encoderFactory(cfg.Storage.Codec)),
		recorder.WithLogger(logger),
		recorder.WithDataBlobCallback(func(descriptor utterance.Descriptor, _ bool) {
			logger.Info("utterance saved",
				"file", descriptor.FileRef,
				"mime_type", descriptor.MimeType,
				"bytes", descriptor.ByteSize,
				"frames", descriptor.Frames,
			)
		}),
		recorder.WithFailureCallback(func(err error, fatal bool) {
			logger.Error("recorder failure", "error", err, "fatal", fatal)
		}),
	}
	if cfg.Storage.CacheDir != "" {
		opts = append(opts, recorder.WithCacheDir(cfg.Storage.CacheDir))
	}
	return opts
}

// logEvents is subscribed at debug level so speech activity shows up while
// tuning thresholds.
func logEvents(logger *slog.Logger) func(events.Event) {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.SpeakingChanged:
			logger.Debug("speaking changed", "speaking", typedEvent.Speaking)
		case events.RecordingChanged:
			logger.Debug("recording changed", "recording", typedEvent.Recording)
		case events.SpeakingDurationMeasured:
			logger.Debug("speaking duration", "duration", typedEvent.Duration)
		case events.LongestSilenceUpdated:
			logger.Debug("longest silence", "duration", typedEvent.Duration)
		}
	}
}
