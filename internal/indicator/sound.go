package indicator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jfreymuth/pulse"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueCancel
)

const cueSampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var cues = map[cueKind][]int16{
	cueStart: synthesizeCue([]toneSpec{
		{frequencyHz: 660, duration: 60 * time.Millisecond, volume: 0.16},
		{frequencyHz: 990, duration: 80 * time.Millisecond, volume: 0.16},
	}),
	cueStop: synthesizeCue([]toneSpec{
		{frequencyHz: 990, duration: 60 * time.Millisecond, volume: 0.16},
		{frequencyHz: 660, duration: 80 * time.Millisecond, volume: 0.16},
	}),
	cueComplete: synthesizeCue([]toneSpec{
		{frequencyHz: 784, duration: 60 * time.Millisecond, volume: 0.16},
		{frequencyHz: 1046, duration: 60 * time.Millisecond, volume: 0.16},
		{frequencyHz: 1318, duration: 90 * time.Millisecond, volume: 0.16},
	}),
	cueCancel: synthesizeCue([]toneSpec{
		{frequencyHz: 440, duration: 140 * time.Millisecond, volume: 0.16},
	}),
}

// emitCue plays a synthesized cue on the default pulse sink.
func emitCue(ctx context.Context, kind cueKind) error {
	samples := cues[kind]
	if len(samples) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("voicetask"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) || ctx.Err() != nil {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("voicetask cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

// synthesizeCue joins tones with short silent gaps.
func synthesizeCue(parts []toneSpec) []int16 {
	gap := samplesForDuration(20 * time.Millisecond)
	var pcm []int16
	for i, part := range parts {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, synthesizeTone(part)...)
	}
	return pcm
}

// synthesizeTone renders a sine tone with a linear ramp at each end.
func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	ramp := min(n/10, cueSampleRate/200)
	ramp = max(ramp, 1)

	pcm := make([]int16, n)
	for i := range n {
		envelope := math.Min(1, float64(i)/float64(ramp))
		envelope = math.Min(envelope, float64(n-i-1)/float64(ramp))
		sample := math.Sin(2 * math.Pi * spec.frequencyHz * float64(i) / cueSampleRate)
		pcm[i] = int16(math.Round(sample * spec.volume * envelope * math.MaxInt16))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
