package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIface = "org.freedesktop.Notifications"
)

// busctl runs one user-bus call. Tests replace it.
var busctl = func(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
}

// desktopNotify sends a freedesktop notification and returns the ID the
// server assigned. A non-zero replaceID updates that bubble in place.
func desktopNotify(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error) {
	out, err := busctl(ctx, notifyArgs(appName, replaceID, summary, timeoutMS)...)
	if err != nil {
		return 0, busctlError("desktop notify", out, err)
	}
	return parseNotificationID(out)
}

// desktopDismiss closes a notification by ID.
func desktopDismiss(ctx context.Context, id uint32) error {
	args := []string{"--user", "call", notifyDest, notifyPath, notifyIface,
		"CloseNotification", "u", strconv.FormatUint(uint64(id), 10)}
	if out, err := busctl(ctx, args...); err != nil {
		return busctlError("desktop dismiss", out, err)
	}
	return nil
}

func notifyArgs(appName string, replaceID uint32, summary string, timeoutMS int) []string {
	return []string{
		"--user", "call", notifyDest, notifyPath, notifyIface,
		"Notify",
		"susssasa{sv}i",
		appName,
		strconv.FormatUint(uint64(replaceID), 10),
		"audio-input-microphone",
		summary,
		"",
		"0", // actions
		"0", // hints
		strconv.Itoa(timeoutMS),
	}
}

// parseNotificationID reads busctl's "u <id>" reply.
func parseNotificationID(out []byte) (uint32, error) {
	reply := strings.TrimSpace(string(out))
	fields := strings.Fields(reply)
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", reply)
	}
	value, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], err)
	}
	return uint32(value), nil
}

func busctlError(op string, out []byte, err error) error {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return fmt.Errorf("%s failed: %w (%s)", op, err, trimmed)
}
