// Package app wires configuration, capture, the remote API and the task cache
// into CLI commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/voicetask/internal/cli"
	"github.com/rbright/voicetask/internal/config"
	"github.com/rbright/voicetask/internal/duedate"
	"github.com/rbright/voicetask/internal/ipc"
	"github.com/rbright/voicetask/internal/logging"
	"github.com/rbright/voicetask/internal/version"
)

// Runner executes one CLI invocation against injectable streams.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Logger *slog.Logger
	// Now overrides the wall clock for due-date resolution.
	Now func() time.Time
}

// Execute runs args with process streams and returns the exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr, Stdin: os.Stdin}
	return r.Execute(ctx, args)
}

// Execute parses args, loads config and dispatches the command.
func (r Runner) Execute(ctx context.Context, args []string) int {
	inv, err := cli.Parse(args, r.Stdout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText())
		return 2
	}

	switch inv.Command {
	case cli.CommandHelp:
		return 0
	case cli.CommandVersion:
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	case cli.CommandDue:
		return r.commandDue(inv)
	}

	level := slog.LevelInfo
	if inv.Verbose {
		level = slog.LevelDebug
	}
	logRuntime, err := logging.New(level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	loaded, err := config.Load(inv.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range loaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", inv.Command,
		"config", loaded.Path,
		"dotenv", loaded.DotEnv,
		"log", logRuntime.Path,
	)

	cfg := loaded.Config
	switch inv.Command {
	case cli.CommandDoctor:
		return r.commandDoctor(ctx, loaded, logger)
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, ipc.CommandCancel)
	case cli.CommandRecord:
		return r.commandRecord(ctx, cfg, logger)
	case cli.CommandTasks:
		return r.commandTasks(ctx, cfg, logger, inv.Status)
	case cli.CommandMove:
		return r.commandMove(ctx, cfg, logger, inv.Args[0], inv.Args[1])
	case cli.CommandDone:
		return r.commandMove(ctx, cfg, logger, inv.Args[0], "Done")
	case cli.CommandRemove:
		return r.commandRemove(ctx, cfg, logger, inv.Args[0])
	case cli.CommandReorder:
		return r.commandReorder(ctx, cfg, logger, inv.Args)
	case cli.CommandSubmit:
		return r.commandSubmit(ctx, cfg, logger, inv.Args[0])
	case cli.CommandLogin:
		return r.commandLogin(cfg, logger, inv.Token)
	case cli.CommandLogout:
		return r.commandLogout(ctx, cfg, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", inv.Command)
		return 2
	}
}

func (r Runner) commandDue(inv cli.Invocation) int {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	if inv.Now != "" {
		parsed, err := time.Parse(time.RFC3339, inv.Now)
		if err != nil {
			return r.fail(fmt.Errorf("--now: %w", err))
		}
		now = parsed
	}

	due, ok := duedate.Resolve(inv.DueText(), now)
	if !ok {
		fmt.Fprintln(r.Stdout, "none")
		return 0
	}
	fmt.Fprintln(r.Stdout, duedate.FormatISO(due))
	return 0
}

func (r Runner) fail(err error) int {
	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	return 1
}
