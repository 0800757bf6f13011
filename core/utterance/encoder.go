// Package utterance turns the frames of one finished utterance into a single
// encoded file on disk.
package utterance

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/google/uuid"
	"github.com/koscakluka/ema-recorder/core/audio"
	"github.com/koscakluka/ema-recorder/core/audio/pcm"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// SourceBlob is the source tag carried by every descriptor.
const SourceBlob = "blob"

// Descriptor points at a persisted utterance.
type Descriptor struct {
	FileRef  string
	Name     string
	MimeType string
	ByteSize int64
	Source   string
	Frames   int
}

// Codec is the numeric half of the encode pipeline.
type Codec interface {
	Normalize(buf *goaudio.Float32Buffer, gain float64) *goaudio.Float32Buffer
	FloatToInt16(buf *goaudio.Float32Buffer) []int16
}

// StreamEncoder is a stateful compressor. It is reused across utterances for
// as long as the capture format does not change.
type StreamEncoder interface {
	Encode(samples []int16) ([]byte, error)
	Flush() ([]byte, error)
	MimeType() string
	Extension() string
}

// EncoderFactory builds a StreamEncoder for a capture format.
type EncoderFactory func(format audio.Format) (StreamEncoder, error)

type Option func(*Encoder)

// WithNormalization enables peak normalization to gain before conversion.
func WithNormalization(gain float64) Option {
	return func(e *Encoder) {
		e.normalize = true
		e.gain = gain
	}
}

func WithCodec(codec Codec) Option {
	return func(e *Encoder) { e.codec = codec }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Encoder) { e.logger = l }
}

type Encoder struct {
	fs         afero.Fs
	dir        string
	codec      Codec
	newEncoder EncoderFactory
	normalize  bool
	gain       float64
	logger     *slog.Logger

	encodedBytes metric.Int64Histogram
	failures     metric.Int64Counter

	mu      sync.Mutex
	format  audio.Format
	current StreamEncoder
}

// NewEncoder creates an encoder that writes artifacts to dir on fs.
func NewEncoder(fs afero.Fs, dir string, newEncoder EncoderFactory, opts ...Option) *Encoder {
	e := &Encoder{
		fs:         fs,
		dir:        dir,
		codec:      pcm.Codec{},
		newEncoder: newEncoder,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.encodedBytes, _ = meter.Int64Histogram("utterance.encoded_bytes",
		metric.WithDescription("Size of persisted utterance artifacts"),
		metric.WithUnit("By"))
	e.failures, _ = meter.Int64Counter("utterance.encode_failures",
		metric.WithDescription("Utterances lost to codec or filesystem errors"))

	return e
}

// Prepare makes sure an encoder for format exists, replacing the current one
// if the format changed.
func (e *Encoder) Prepare(format audio.Format) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.encoderLocked(format)
	return err
}

func (e *Encoder) encoderLocked(format audio.Format) (StreamEncoder, error) {
	if e.current != nil && e.format == format {
		return e.current, nil
	}

	if e.current != nil {
		if _, err := e.current.Flush(); err != nil {
			e.logger.Warn("failed to flush replaced encoder", "error", err)
		}
		e.logger.Debug("replacing encoder",
			"from_channels", e.format.Channels, "from_sample_rate", e.format.SampleRate,
			"to_channels", format.Channels, "to_sample_rate", format.SampleRate)
		e.current = nil
	}

	encoder, err := e.newEncoder(format)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder for %d channel(s) at %d Hz: %w", format.Channels, format.SampleRate, err)
	}

	e.current = encoder
	e.format = format
	return encoder, nil
}

// Encode assembles payloads into one artifact, writes it and describes it.
func (e *Encoder) Encode(ctx context.Context, format audio.Format, payloads [][]byte) (Descriptor, error) {
	ctx, span := tracer.Start(ctx, "encode utterance")
	defer span.End()
	span.SetAttributes(
		attribute.Int("utterance.frames", len(payloads)),
		attribute.Int("audio.channels", format.Channels),
		attribute.Int("audio.sample_rate", format.SampleRate),
	)

	descriptor, err := e.encode(format, payloads)
	if err != nil {
		e.failures.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Descriptor{}, err
	}

	e.encodedBytes.Record(ctx, descriptor.ByteSize)
	span.SetAttributes(attribute.Int64("utterance.bytes", descriptor.ByteSize))
	return descriptor, nil
}

func (e *Encoder) encode(format audio.Format, payloads [][]byte) (Descriptor, error) {
	buf, err := pcm.Concat(format, payloads)
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to assemble utterance: %w", err)
	}

	if e.normalize {
		buf = e.codec.Normalize(buf, e.gain)
	}
	samples := e.codec.FloatToInt16(buf)

	e.mu.Lock()
	encoded, mimeType, ext, err := e.compressLocked(format, samples)
	e.mu.Unlock()
	if err != nil {
		return Descriptor{}, err
	}

	name := uuid.NewString() + "." + ext
	path, err := e.write(name, encoded)
	if err != nil {
		return Descriptor{}, err
	}

	return Descriptor{
		FileRef:  "file://" + filepath.ToSlash(path),
		Name:     name,
		MimeType: mimeType,
		ByteSize: int64(len(encoded)),
		Source:   SourceBlob,
		Frames:   len(payloads),
	}, nil
}

func (e *Encoder) compressLocked(format audio.Format, samples []int16) ([]byte, string, string, error) {
	encoder, err := e.encoderLocked(format)
	if err != nil {
		return nil, "", "", err
	}

	encoded, err := encoder.Encode(samples)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to encode %d samples: %w", len(samples), err)
	}
	tail, err := encoder.Flush()
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to flush encoder: %w", err)
	}

	return append(encoded, tail...), encoder.MimeType(), encoder.Extension(), nil
}

func (e *Encoder) write(name string, data []byte) (string, error) {
	exists, err := afero.DirExists(e.fs, e.dir)
	if err != nil {
		return "", fmt.Errorf("failed to stat cache directory %s: %w", e.dir, err)
	}
	if !exists {
		if err := e.fs.MkdirAll(e.dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create cache directory %s: %w", e.dir, err)
		}
	}

	path := filepath.Join(e.dir, name)
	if err := afero.WriteFile(e.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write utterance %s: %w", path, err)
	}

	return path, nil
}

// Close flushes and drops the current encoder.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return nil
	}

	_, err := e.current.Flush()
	e.current = nil
	e.format = audio.Format{}
	if err != nil {
		return fmt.Errorf("failed to flush encoder: %w", err)
	}
	return nil
}

// Base64DecodedLen returns the number of bytes a base64 string decodes to,
// accounting for trailing padding.
func Base64DecodedLen(encoded string) int {
	padding := 0
	switch {
	case strings.HasSuffix(encoded, "=="):
		padding = 2
	case strings.HasSuffix(encoded, "="):
		padding = 1
	}
	return len(encoded)*3/4 - padding
}
