package remote

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rbright/voicetask/internal/task"
)

// Upload is one audio payload submitted for transcription.
type Upload struct {
	Data        []byte
	ContentType string
	Filename    string
}

// ExtractedTask is one task proposal returned by the extraction endpoint.
type ExtractedTask struct {
	Title   string
	Status  task.Status
	DueDate *time.Time
	DueText string
}

type extractedTaskWire struct {
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	DueDate     *string `json:"due_date"`
	DueDateText string  `json:"due_date_text"`
}

// Transcribe uploads audio as multipart field "audio" and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, upload Upload) (string, error) {
	const op = "transcribe"

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, upload.Filename))
	header.Set("Content-Type", upload.ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("%s: create form part: %w", op, err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return "", fmt.Errorf("%s: write form part: %w", op, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%s: close form: %w", op, err)
	}

	path := "voice/transcribe"
	if c.testMode {
		path = "voice/transcribe-test"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path).String(), &body)
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if !c.testMode {
		if err := c.authorize(req); err != nil {
			return "", err
		}
	}

	var text string
	if err := c.do(op, req, &text); err != nil {
		return "", err
	}
	return text, nil
}

// Extract asks the server to split a transcript into task proposals.
// The transcript travels as the "transcription" query parameter the API
// binds, and is mirrored in a JSON body for servers that read it there.
func (c *Client) Extract(ctx context.Context, transcript string) ([]ExtractedTask, error) {
	const op = "extract"

	path := "voice/extract-tasks"
	if c.testMode {
		path = "voice/extract-tasks-test"
	}
	u := c.endpoint(path)
	u.RawQuery = url.Values{"transcription": []string{transcript}}.Encode()

	req, err := c.newJSONRequest(ctx, http.MethodPost, u, map[string]string{"transcription": transcript})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !c.testMode {
		if err := c.authorize(req); err != nil {
			return nil, err
		}
	}

	var payload []extractedTaskWire
	if err := c.do(op, req, &payload); err != nil {
		return nil, err
	}

	out := make([]ExtractedTask, 0, len(payload))
	for _, wire := range payload {
		title := strings.TrimSpace(wire.Title)
		if title == "" {
			continue
		}
		status := task.StatusToDo
		if wire.Status != "" {
			parsed, err := task.ParseStatus(wire.Status)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			status = parsed
		}
		extracted := ExtractedTask{Title: title, Status: status, DueText: strings.TrimSpace(wire.DueDateText)}
		if wire.DueDate != nil {
			if due, ok := parseTimestamp(*wire.DueDate); ok {
				extracted.DueDate = &due
			}
		}
		out = append(out, extracted)
	}
	return out, nil
}
