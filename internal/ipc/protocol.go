package ipc

// Command names one control action understood by the session owner.
type Command string

const (
	CommandStatus Command = "status"
	CommandToggle Command = "toggle"
	CommandStop   Command = "stop"
	CommandCancel Command = "cancel"
)

// ParseCommand maps a CLI verb onto a Command.
func ParseCommand(raw string) (Command, bool) {
	switch Command(raw) {
	case CommandStatus, CommandToggle, CommandStop, CommandCancel:
		return Command(raw), true
	default:
		return "", false
	}
}

// Request is one JSON line sent to the owner socket.
type Request struct {
	Command Command `json:"command"`
}

// Response is the owner's single JSON line reply.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
