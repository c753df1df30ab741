package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const fragmentSizeBytes = 640 // 20ms @ 16kHz mono s16

// PulseBackend records 16-bit PCM from a PulseAudio/PipeWire source and frames it as WAV.
type PulseBackend struct {
	family   Family
	input    string
	fallback string
	logger   *slog.Logger
}

// NewPulseBackend builds a backend bound to the configured input preferences.
func NewPulseBackend(family Family, input string, fallback string, logger *slog.Logger) *PulseBackend {
	return &PulseBackend{family: family, input: input, fallback: fallback, logger: logger}
}

func (b *PulseBackend) Name() string   { return "pulse" }
func (b *PulseBackend) Family() Family { return b.family }

// Supports reports whether enc can be produced; Pulse only yields PCM framed as WAV.
func (b *PulseBackend) Supports(enc Encoding) bool {
	return enc.Container == encodingWAV.Container
}

// RequestPermission probes the sound server. Pulse has no consent prompt, so a
// reachable server with at least one source counts as granted.
func (b *PulseBackend) RequestPermission(ctx context.Context) (Permission, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if len(devices) == 0 {
		return "", ErrNoDevice
	}
	return PermissionGranted, nil
}

// Open starts a record stream shaped by the requested tier.
func (b *PulseBackend) Open(ctx context.Context, constraints Constraints) (Stream, error) {
	if !constraints.Encoding.IsZero() && !b.Supports(constraints.Encoding) {
		return nil, fmt.Errorf("pulse cannot produce %s", constraints.Encoding.ContentType)
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	source, sampleRate, err := b.resolveSource(ctx, client, constraints.Tier)
	if err != nil {
		client.Close()
		return nil, err
	}

	stream := newPulseStream(sampleRate)
	stream.client = client

	opts := []pulse.RecordOption{
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordMediaName("voicetask capture"),
	}
	if constraints.Tier == TierPreferred {
		opts = append(opts, pulse.RecordBufferFragmentSize(fragmentSizeBytes))
	}

	writer := pulse.NewWriter(writerFunc(stream.onPCM), pulseproto.FormatInt16LE)
	record, err := client.NewRecord(writer, opts...)
	if err != nil {
		_ = stream.Release()
		return nil, fmt.Errorf("create pulse record stream (%s): %w", constraints.Tier, err)
	}

	stream.record = record
	record.Start()
	return stream, nil
}

func (b *PulseBackend) resolveSource(ctx context.Context, client *pulse.Client, tier Tier) (*pulse.Source, int, error) {
	switch tier {
	case TierPreferred:
		selection, err := SelectDevice(ctx, b.input, b.fallback)
		if err != nil {
			return nil, 0, err
		}
		if selection.Warning != "" && b.logger != nil {
			b.logger.Warn(selection.Warning)
		}
		source, err := client.SourceByID(selection.Device.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("resolve source %q: %w", selection.Device.ID, err)
		}
		return source, pcmSampleRate, nil
	case TierMinimal, TierPlatformDefault:
		source, err := client.DefaultSource()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		if tier == TierPlatformDefault {
			return source, defaultSampleRate, nil
		}
		return source, pcmSampleRate, nil
	default:
		return nil, 0, fmt.Errorf("unsupported constraint tier %s", tier)
	}
}

// pulseStream accumulates PCM frames from one record stream.
type pulseStream struct {
	sampleRate int

	client *pulse.Client
	record *pulse.RecordStream

	stopCh chan struct{}

	mu       sync.Mutex
	pcm      []byte
	stopped  bool
	released bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

func newPulseStream(sampleRate int) *pulseStream {
	return &pulseStream{sampleRate: sampleRate, stopCh: make(chan struct{})}
}

func (s *pulseStream) Encoding() Encoding { return encodingWAV }

// Finalize stops the record stream and returns the captured audio as WAV.
func (s *pulseStream) Finalize(_ context.Context) ([]byte, error) {
	s.stop()

	s.mu.Lock()
	pcm := append([]byte(nil), s.pcm...)
	s.mu.Unlock()

	if len(pcm) == 0 {
		return nil, errors.New("pulse stream produced no audio")
	}
	return encodeWAV(pcm, s.sampleRate), nil
}

// Release closes the record stream and the server connection.
func (s *pulseStream) Release() error {
	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	if s.record != nil {
		s.record.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// BytesCaptured reports total PCM bytes accepted from the server.
func (s *pulseStream) BytesCaptured() int64 {
	return s.bytes.Load()
}

func (s *pulseStream) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	if s.record != nil {
		s.record.Stop()
	}
	s.inflight.Wait()
}

func (s *pulseStream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-s.stopCh:
		return 0, io.EOF
	default:
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as stopped so Wait never races Add.
	s.inflight.Add(1)
	s.pcm = append(s.pcm, buffer...)
	s.mu.Unlock()
	defer s.inflight.Done()

	s.bytes.Add(int64(len(buffer)))
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
