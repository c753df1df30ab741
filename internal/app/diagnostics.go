package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rbright/voicetask/internal/audio"
	"github.com/rbright/voicetask/internal/config"
	"github.com/rbright/voicetask/internal/doctor"
	"github.com/rbright/voicetask/internal/taskcache"
)

func (r Runner) commandDoctor(ctx context.Context, loaded config.Loaded, logger *slog.Logger) int {
	cfg := loaded.Config
	probes := doctor.Probes{
		Token: tokenSource(cfg.Auth),
		OpenCache: func(ctx context.Context, path string) (io.Closer, error) {
			store, err := taskcache.OpenSQLite(ctx, path)
			if err != nil {
				return nil, err
			}
			return store, nil
		},
	}

	if client, err := newRemote(cfg); err == nil {
		probes.Ping = client.Ping
	} else {
		fmt.Fprintf(r.Stderr, "warning: %v\n", err)
	}
	if backend, err := newBackend(cfg.Capture, logger); err == nil {
		probes.Backend = backend
	} else {
		fmt.Fprintf(r.Stderr, "warning: %v\n", err)
	}

	report := doctor.Run(ctx, loaded, probes)
	fmt.Fprintln(r.Stdout, report.String())
	logger.Info("doctor complete", "ok", report.OK(), "checks", len(report.Checks))
	if report.OK() {
		return 0
	}
	return 1
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		return r.fail(err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}
	r.renderDevices(devices)
	return 0
}
