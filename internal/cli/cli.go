// Package cli defines the voicetask command tree and resolves argv into an Invocation.
package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// Command names one CLI action.
type Command string

const (
	CommandRecord  Command = "record"
	CommandStop    Command = "stop"
	CommandCancel  Command = "cancel"
	CommandStatus  Command = "status"
	CommandTasks   Command = "tasks"
	CommandMove    Command = "move"
	CommandDone    Command = "done"
	CommandRemove  Command = "rm"
	CommandReorder Command = "reorder"
	CommandSubmit  Command = "submit"
	CommandDue     Command = "due"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandLogin   Command = "login"
	CommandLogout  Command = "logout"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// Invocation is a parsed command line.
type Invocation struct {
	Command    Command
	ConfigPath string
	Verbose    bool
	Args       []string

	// Status filters `tasks`.
	Status string
	// Now overrides the reference time for `due` (RFC3339).
	Now string
	// Token is the value passed to `login`; empty reads stdin.
	Token string
}

// Parse resolves args against the command tree. Help output goes to out.
func Parse(args []string, out io.Writer) (Invocation, error) {
	inv := Invocation{Command: CommandHelp}
	root := newRoot(&inv)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(io.Discard)
	if err := root.Execute(); err != nil {
		return Invocation{}, err
	}
	return inv, nil
}

// HelpText renders root usage.
func HelpText() string {
	var inv Invocation
	return newRoot(&inv).UsageString()
}

func newRoot(inv *Invocation) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:           "voicetask",
		Short:         "Speak tasks into your task list",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				inv.Command = CommandVersion
				return nil
			}
			return cmd.Help()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&inv.ConfigPath, "config", "c", "", "Config file path (default: $XDG_CONFIG_HOME/voicetask/config.toml)")
	root.PersistentFlags().BoolVarP(&inv.Verbose, "verbose", "v", false, "Log at debug level")
	root.Flags().BoolVar(&showVersion, "version", false, "Show version")

	leaf := func(name Command, use, short string, args cobra.PositionalArgs) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(_ *cobra.Command, rest []string) error {
				inv.Command = name
				inv.Args = rest
				return nil
			},
		}
	}

	tasks := leaf(CommandTasks, "tasks", "Sync and list tasks", cobra.NoArgs)
	tasks.Flags().StringVarP(&inv.Status, "status", "s", "", `Only show one bucket ("To Do", "In Progress", "Done")`)

	due := leaf(CommandDue, "due TEXT...", "Resolve a spoken due date", cobra.MinimumNArgs(1))
	due.Flags().StringVar(&inv.Now, "now", "", "Reference time in RFC3339 (default: now)")

	login := leaf(CommandLogin, "login", "Store an access token", cobra.NoArgs)
	login.Flags().StringVar(&inv.Token, "token", "", "Token value (default: read from stdin)")

	root.AddCommand(
		leaf(CommandRecord, "record", "Start recording, or stop and submit when already recording", cobra.NoArgs),
		leaf(CommandStop, "stop", "Stop the active recording and submit it", cobra.NoArgs),
		leaf(CommandCancel, "cancel", "Discard the active recording", cobra.NoArgs),
		leaf(CommandStatus, "status", "Print the session phase", cobra.NoArgs),
		tasks,
		leaf(CommandMove, "move ID STATUS", "Change a task's status", cobra.ExactArgs(2)),
		leaf(CommandDone, "done ID", "Mark a task done", cobra.ExactArgs(1)),
		leaf(CommandRemove, "rm ID", "Delete a task", cobra.ExactArgs(1)),
		leaf(CommandReorder, "reorder ID...", "Set the display order within one status", cobra.MinimumNArgs(1)),
		leaf(CommandSubmit, "submit FILE", "Run an existing recording through the pipeline", cobra.ExactArgs(1)),
		due,
		leaf(CommandDevices, "devices", "List input devices", cobra.NoArgs),
		leaf(CommandDoctor, "doctor", "Run configuration and environment checks", cobra.NoArgs),
		login,
		leaf(CommandLogout, "logout", "Forget the stored token and cached tasks", cobra.NoArgs),
		leaf(CommandVersion, "version", "Print version information", cobra.NoArgs),
	)
	return root
}

// DueText joins the words passed to `due`.
func (inv Invocation) DueText() string {
	return strings.Join(inv.Args, " ")
}
