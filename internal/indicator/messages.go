package indicator

import "fmt"

type messages struct {
	recording  string
	processing string
	errorText  string
	noTasks    string
}

func defaultMessages() messages {
	return messages{
		recording:  "Recording…",
		processing: "Extracting tasks…",
		errorText:  "Something went wrong",
		noTasks:    "No tasks found",
	}
}

func (m messages) created(count int) string {
	switch {
	case count <= 0:
		return m.noTasks
	case count == 1:
		return "Added 1 task"
	default:
		return fmt.Sprintf("Added %d tasks", count)
	}
}
