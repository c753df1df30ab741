package app

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/rbright/voicetask/internal/audio"
	"github.com/rbright/voicetask/internal/task"
)

// isTerminal reports whether w is an interactive terminal. Pipes get TSV.
func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (r Runner) renderTasks(records []task.Record) {
	headers := []string{"ID", "STATUS", "TITLE", "DUE"}
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{record.ID, record.Status.String(), record.Title, formatDue(record.DueDate)})
	}
	if len(rows) == 0 {
		fmt.Fprintln(r.Stdout, "no tasks")
		return
	}
	r.render(headers, rows)
}

func (r Runner) printCreated(records []task.Record) {
	for _, record := range records {
		fmt.Fprintf(r.Stdout, "created %s\t%s\t%s\n", record.ID, record.Title, formatDue(record.DueDate))
	}
}

func (r Runner) renderDevices(devices []audio.Device) {
	headers := []string{"", "ID", "DESCRIPTION", "STATE", "AVAILABLE", "MUTED"}
	rows := make([][]string, 0, len(devices))
	for _, device := range devices {
		mark := ""
		if device.Default {
			mark = "*"
		}
		rows = append(rows, []string{
			mark,
			device.ID,
			device.Description,
			device.State,
			strconv.FormatBool(device.Available),
			strconv.FormatBool(device.Muted),
		})
	}
	r.render(headers, rows)
}

func (r Runner) render(headers []string, rows [][]string) {
	if !isTerminal(r.Stdout) {
		for _, row := range rows {
			fmt.Fprintln(r.Stdout, strings.Join(row, "\t"))
		}
		return
	}
	fmt.Fprintln(r.Stdout, renderTable(headers, rows))
}

func renderTable(headers []string, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, WidthMax: 60}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func formatDue(due *time.Time) string {
	if due == nil {
		return "-"
	}
	return due.Local().Format("Mon Jan 2 15:04")
}
