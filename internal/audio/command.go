package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	outputPlaceholder = "{output}"
	inputPlaceholder  = "{input}"

	commandExitGrace = 2 * time.Second
)

// CommandBackend records by running an external recorder that writes one file.
type CommandBackend struct {
	family   Family
	template []string
	input    string
	logger   *slog.Logger

	lookPath func(string) (string, error)
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewCommandBackend builds a backend around template, or ffmpeg when template is empty.
func NewCommandBackend(family Family, template []string, logger *slog.Logger) *CommandBackend {
	return &CommandBackend{
		family:   family,
		template: append([]string(nil), template...),
		input:    defaultInputFor(family),
		logger:   logger,
		lookPath: exec.LookPath,
		command:  exec.CommandContext,
	}
}

func (b *CommandBackend) Name() string   { return "command" }
func (b *CommandBackend) Family() Family { return b.family }

// Supports reports whether the recorder can be asked for enc. A custom
// template is opaque, so it only claims the family's first preference.
func (b *CommandBackend) Supports(enc Encoding) bool {
	if len(b.template) > 0 {
		return enc.ContentType == DefaultContentType(b.family)
	}
	_, ok := codecArgs(enc)
	return ok
}

// RequestPermission checks that the recorder binary is installed.
func (b *CommandBackend) RequestPermission(_ context.Context) (Permission, error) {
	binary := b.binary()
	if _, err := b.lookPath(binary); err != nil {
		return "", fmt.Errorf("%w: recorder %q not found: %v", ErrNoDevice, binary, err)
	}
	return PermissionGranted, nil
}

// Open launches the recorder into a private temporary file.
func (b *CommandBackend) Open(_ context.Context, constraints Constraints) (Stream, error) {
	enc := constraints.Encoding
	if enc.IsZero() {
		enc = Preferences(b.family)[0]
	}
	if !b.Supports(enc) && constraints.Tier == TierPreferred {
		return nil, fmt.Errorf("recorder cannot produce %s", enc.ContentType)
	}

	dir, err := os.MkdirTemp("", "voicetask-capture-*")
	if err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	output := filepath.Join(dir, "recording."+enc.Extension)

	argv, err := b.argv(constraints.Tier, enc, output)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	// The recorder outlives Open's context; Finalize and Release own its lifetime.
	cmd := b.command(context.Background(), argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("start recorder (%s): %w", constraints.Tier, err)
	}

	stream := &commandStream{
		encoding: enc,
		cmd:      cmd,
		dir:      dir,
		output:   output,
		done:     make(chan struct{}),
	}
	go stream.wait()

	if b.logger != nil {
		b.logger.Debug("recorder started", "argv", strings.Join(argv, " "), "tier", constraints.Tier.String())
	}
	return stream, nil
}

func (b *CommandBackend) binary() string {
	if len(b.template) > 0 {
		return b.template[0]
	}
	return "ffmpeg"
}

func (b *CommandBackend) argv(tier Tier, enc Encoding, output string) ([]string, error) {
	if len(b.template) > 0 {
		argv := make([]string, 0, len(b.template))
		sawOutput := false
		for _, arg := range b.template {
			if strings.Contains(arg, outputPlaceholder) {
				sawOutput = true
			}
			arg = strings.ReplaceAll(arg, outputPlaceholder, output)
			arg = strings.ReplaceAll(arg, inputPlaceholder, b.input)
			argv = append(argv, arg)
		}
		if !sawOutput {
			return nil, fmt.Errorf("recorder command must contain %s", outputPlaceholder)
		}
		return argv, nil
	}

	argv := []string{"ffmpeg", "-hide_banner", "-loglevel", "error", "-nostdin", "-y"}
	argv = append(argv, inputArgs(b.family, b.input)...)

	switch tier {
	case TierPreferred:
		codec, _ := codecArgs(enc)
		argv = append(argv, "-ac", "1")
		argv = append(argv, codec...)
	case TierMinimal:
		argv = append(argv, "-ac", "1")
	}
	return append(argv, output), nil
}

func defaultInputFor(family Family) string {
	switch family {
	case FamilyApple:
		return ":0"
	default:
		return "default"
	}
}

func inputArgs(family Family, input string) []string {
	switch family {
	case FamilyApple:
		return []string{"-f", "avfoundation", "-i", input}
	case FamilyLinux:
		return []string{"-f", "pulse", "-i", input}
	default:
		return []string{"-f", "alsa", "-i", input}
	}
}

func codecArgs(enc Encoding) ([]string, bool) {
	switch enc.Codec {
	case "aac":
		return []string{"-c:a", "aac", "-b:a", "64k"}, true
	case "opus":
		return []string{"-c:a", "libopus", "-b:a", "32k"}, true
	case "pcm_s16le":
		return []string{"-c:a", "pcm_s16le", "-ar", "16000"}, true
	default:
		return nil, false
	}
}

// commandStream is one running recorder process.
type commandStream struct {
	encoding Encoding
	cmd      *exec.Cmd
	dir      string
	output   string

	done    chan struct{}
	waitErr error

	once sync.Once
}

func (s *commandStream) Encoding() Encoding { return s.encoding }

func (s *commandStream) wait() {
	s.waitErr = s.cmd.Wait()
	close(s.done)
}

// Finalize interrupts the recorder so it can write its trailer, then reads the file.
func (s *commandStream) Finalize(ctx context.Context) ([]byte, error) {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	data, err := os.ReadFile(s.output)
	if err != nil {
		if s.waitErr != nil {
			return nil, fmt.Errorf("recorder exited: %w", s.waitErr)
		}
		return nil, fmt.Errorf("read recording: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("recorder produced an empty file")
	}
	return data, nil
}

// Release stops the recorder if still running and removes its files.
func (s *commandStream) Release() error {
	var err error
	s.once.Do(func() {
		select {
		case <-s.done:
		default:
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Signal(os.Interrupt)
			}
			select {
			case <-s.done:
			case <-time.After(commandExitGrace):
				if s.cmd.Process != nil {
					_ = s.cmd.Process.Kill()
				}
				<-s.done
			}
		}
		err = os.RemoveAll(s.dir)
	})
	return err
}
