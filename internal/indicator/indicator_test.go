package indicator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voicetask/internal/config"
)

type notifyCall struct {
	replaceID uint32
	summary   string
	timeoutMS int
}

type fakeDesktop struct {
	mu        sync.Mutex
	nextID    uint32
	calls     []notifyCall
	dismissed []uint32
	cues      []cueKind
	err       error
}

func (f *fakeDesktop) notify(_ context.Context, _ string, replaceID uint32, summary string, timeoutMS int) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.calls = append(f.calls, notifyCall{replaceID: replaceID, summary: summary, timeoutMS: timeoutMS})
	if replaceID != 0 {
		return replaceID, nil
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeDesktop) dismiss(_ context.Context, id uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed = append(f.dismissed, id)
	return nil
}

func (f *fakeDesktop) cue(_ context.Context, kind cueKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cues = append(f.cues, kind)
	return nil
}

func (f *fakeDesktop) cueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cues)
}

func newTestNotifier(cfg config.IndicatorConfig) (*Notifier, *fakeDesktop) {
	fake := &fakeDesktop{}
	n := NewNotifier(cfg, nil)
	n.notify = fake.notify
	n.dismiss = fake.dismiss
	n.cue = fake.cue
	return n, fake
}

func TestNotifierReplacesProgressBubbleThenDismisses(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	n, fake := newTestNotifier(cfg)

	n.ShowRecording(context.Background())
	n.ShowProcessing(context.Background())
	n.Hide(context.Background())

	require.Equal(t, []notifyCall{
		{replaceID: 0, summary: "Recording…", timeoutMS: stickyTimeoutMS},
		{replaceID: 1, summary: "Extracting tasks…", timeoutMS: stickyTimeoutMS},
	}, fake.calls)
	require.Equal(t, []uint32{1}, fake.dismissed)
}

func TestNotifierResultOutlivesHide(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	n, fake := newTestNotifier(cfg)

	n.ShowProcessing(context.Background())
	n.ShowCreated(context.Background(), 3)
	n.Hide(context.Background())

	require.Len(t, fake.calls, 2)
	require.Equal(t, "Added 3 tasks", fake.calls[1].summary)
	require.Equal(t, resultTimeoutMS, fake.calls[1].timeoutMS)
	require.Empty(t, fake.dismissed)
}

func TestNotifierErrorTimeoutFallback(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	cfg.ErrorTimeoutMS = 0
	n, fake := newTestNotifier(cfg)

	n.ShowError(context.Background(), "")
	n.ShowError(context.Background(), "No speech detected")

	require.Equal(t, "Something went wrong", fake.calls[0].summary)
	require.Equal(t, defaultErrorTimeout, fake.calls[0].timeoutMS)
	require.Equal(t, "No speech detected", fake.calls[1].summary)
}

func TestNotifierDisabledIsSilent(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.Enable = false
	cfg.SoundEnable = false
	n, fake := newTestNotifier(cfg)

	n.ShowRecording(context.Background())
	n.ShowCreated(context.Background(), 1)
	n.CueStop(context.Background())
	n.Hide(context.Background())

	require.Empty(t, fake.calls)
	require.Empty(t, fake.dismissed)
	require.Zero(t, fake.cueCount())
}

func TestNotifierDispatchErrorsAreSwallowed(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	n, fake := newTestNotifier(cfg)
	fake.err = errors.New("no session bus")

	n.ShowRecording(context.Background())
	n.Hide(context.Background())

	require.Empty(t, fake.dismissed)
}

func TestNotifierPlaysCues(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.Enable = false
	cfg.SoundEnable = true
	n, fake := newTestNotifier(cfg)

	n.CueStop(context.Background())
	n.CueCancel(context.Background())

	require.Eventually(t, func() bool { return fake.cueCount() == 2 }, time.Second, 5*time.Millisecond)
	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.ElementsMatch(t, []cueKind{cueStop, cueCancel}, fake.cues)
}

func TestMessagesCreatedText(t *testing.T) {
	m := defaultMessages()
	require.Equal(t, "No tasks found", m.created(0))
	require.Equal(t, "Added 1 task", m.created(1))
	require.Equal(t, "Added 4 tasks", m.created(4))
}
