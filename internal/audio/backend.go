package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNoDevice reports that no usable microphone exists on this host.
var ErrNoDevice = errors.New("no audio input device")

// Permission is the outcome of a microphone access request.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Tier selects how strict the stream constraints are for one open attempt.
type Tier int

const (
	TierPreferred Tier = iota
	TierMinimal
	TierPlatformDefault
)

func (t Tier) String() string {
	switch t {
	case TierPreferred:
		return "preferred"
	case TierMinimal:
		return "minimal"
	case TierPlatformDefault:
		return "platform-default"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Constraints are the stream parameters requested for one open attempt.
// A zero Encoding lets the backend pick its own default.
type Constraints struct {
	Tier     Tier
	Encoding Encoding
}

// Backend is one platform family's capture implementation.
type Backend interface {
	Name() string
	Family() Family
	Supports(Encoding) bool
	RequestPermission(ctx context.Context) (Permission, error)
	Open(ctx context.Context, constraints Constraints) (Stream, error)
}

// Stream is an open device recording.
type Stream interface {
	// Encoding reports what the stream actually produces.
	Encoding() Encoding
	// Finalize stops recording and returns the encoded payload.
	Finalize(ctx context.Context) ([]byte, error)
	// Release frees the device. It is safe to call more than once.
	Release() error
}

// Options configures backend selection.
type Options struct {
	Backend  string
	Family   Family
	Input    string
	Fallback string
	Command  []string
	Logger   *slog.Logger
}

// NewBackend selects the capture backend once for the process lifetime.
func NewBackend(opts Options) (Backend, error) {
	family := opts.Family
	if family == "" {
		family = FamilyGeneric
	}

	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "auto":
		if family == FamilyLinux {
			return NewPulseBackend(family, opts.Input, opts.Fallback, opts.Logger), nil
		}
		return NewCommandBackend(family, opts.Command, opts.Logger), nil
	case "pulse":
		return NewPulseBackend(family, opts.Input, opts.Fallback, opts.Logger), nil
	case "command":
		return NewCommandBackend(family, opts.Command, opts.Logger), nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", opts.Backend)
	}
}
