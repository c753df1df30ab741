package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommandBackendPermissionMissingBinary(t *testing.T) {
	backend := NewCommandBackend(FamilyApple, nil, nil)
	backend.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, err := backend.RequestPermission(context.Background())
	require.ErrorIs(t, err, ErrNoDevice)
	require.Contains(t, err.Error(), "ffmpeg")
}

func TestCommandBackendPermissionGranted(t *testing.T) {
	backend := NewCommandBackend(FamilyApple, []string{"rec", "{output}"}, nil)
	var looked string
	backend.lookPath = func(name string) (string, error) {
		looked = name
		return "/usr/bin/" + name, nil
	}

	permission, err := backend.RequestPermission(context.Background())
	require.NoError(t, err)
	require.Equal(t, PermissionGranted, permission)
	require.Equal(t, "rec", looked)
}

func TestCommandBackendBuiltInArgvPerTier(t *testing.T) {
	backend := NewCommandBackend(FamilyApple, nil, nil)

	preferred, err := backend.argv(TierPreferred, encodingM4A, "/tmp/out.m4a")
	require.NoError(t, err)
	require.Equal(t, []string{
		"ffmpeg", "-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-f", "avfoundation", "-i", ":0",
		"-ac", "1", "-c:a", "aac", "-b:a", "64k",
		"/tmp/out.m4a",
	}, preferred)

	minimal, err := backend.argv(TierMinimal, encodingM4A, "/tmp/out.m4a")
	require.NoError(t, err)
	require.Equal(t, []string{"-ac", "1", "/tmp/out.m4a"}, minimal[len(minimal)-3:])

	platform, err := backend.argv(TierPlatformDefault, encodingM4A, "/tmp/out.m4a")
	require.NoError(t, err)
	require.Equal(t, ":0", platform[len(platform)-2])
	require.Equal(t, "/tmp/out.m4a", platform[len(platform)-1])
}

func TestCommandBackendTemplateSubstitution(t *testing.T) {
	backend := NewCommandBackend(FamilyLinux, []string{"pw-record", "--target", "{input}", "{output}"}, nil)

	argv, err := backend.argv(TierPreferred, encodingWAV, "/tmp/x.wav")
	require.NoError(t, err)
	require.Equal(t, []string{"pw-record", "--target", "default", "/tmp/x.wav"}, argv)

	broken := NewCommandBackend(FamilyLinux, []string{"pw-record"}, nil)
	_, err = broken.argv(TierPreferred, encodingWAV, "/tmp/x.wav")
	require.Error(t, err)
}

func TestCommandBackendSupports(t *testing.T) {
	builtIn := NewCommandBackend(FamilyAndroid, nil, nil)
	require.True(t, builtIn.Supports(encodingWebM))
	require.True(t, builtIn.Supports(encodingM4A))
	require.False(t, builtIn.Supports(Encoding{Codec: "flac", ContentType: "audio/flac"}))

	custom := NewCommandBackend(FamilyAndroid, []string{"rec", "{output}"}, nil)
	require.True(t, custom.Supports(encodingWebM))
	require.False(t, custom.Supports(encodingM4A))
}

func TestCommandStreamFinalizeReadsRecording(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	backend := NewCommandBackend(FamilyLinux, []string{
		"sh", "-c", `printf 'captured-audio' > "$0"; exec sleep 30`, "{output}",
	}, nil)

	stream, err := backend.Open(context.Background(), Constraints{Tier: TierPreferred})
	require.NoError(t, err)
	require.Equal(t, "audio/wav", stream.Encoding().ContentType)

	cs := stream.(*commandStream)
	require.Eventually(t, func() bool {
		info, statErr := os.Stat(cs.output)
		return statErr == nil && info.Size() > 0
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, err := stream.Finalize(ctx)
	require.NoError(t, err)
	require.Equal(t, "captured-audio", string(data))

	require.NoError(t, stream.Release())
	require.NoError(t, stream.Release())
	_, err = os.Stat(cs.dir)
	require.True(t, os.IsNotExist(err))
}

func TestCommandStreamReleaseWithoutFinalizeStopsRecorder(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	backend := NewCommandBackend(FamilyLinux, []string{"sleep", "30", "{output}"}, nil)
	stream, err := backend.Open(context.Background(), Constraints{Tier: TierPreferred})
	require.NoError(t, err)

	require.NoError(t, stream.Release())
	select {
	case <-stream.(*commandStream).done:
	default:
		t.Fatal("recorder still running after release")
	}
}
