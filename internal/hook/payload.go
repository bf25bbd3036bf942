package hook

import (
	"encoding/json"
	"io"
	"os"

	"github.com/zjrosen/stagehook/internal/log"
)

// maxPayloadBytes bounds how much of stdin is read.
const maxPayloadBytes = 8 << 20

// Payload is the JSON object the harness writes to stdin. Every field is optional.
type Payload struct {
	SessionID      string
	Cwd            string
	TranscriptPath string
	Prompt         string
	Content        string
	HookEventName  string
}

// ParsePayload decodes the stdin payload. Empty, malformed or non-object input and
// fields of the wrong type all read as absent.
func ParsePayload(r io.Reader) Payload {
	if r == nil {
		return Payload{}
	}
	data, err := io.ReadAll(io.LimitReader(r, maxPayloadBytes))
	if err != nil {
		log.Warn(log.CatHook, "reading hook payload", "error", err)
		return Payload{}
	}
	return DecodePayload(data)
}

// DecodePayload decodes raw payload bytes leniently.
func DecodePayload(data []byte) Payload {
	if len(data) == 0 {
		return Payload{}
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn(log.CatHook, "ignoring malformed hook payload", "error", err, "bytes", len(data))
		return Payload{}
	}
	return Payload{
		SessionID:      stringField(raw, "session_id"),
		Cwd:            stringField(raw, "cwd"),
		TranscriptPath: stringField(raw, "transcript_path"),
		Prompt:         stringField(raw, "prompt"),
		Content:        stringField(raw, "content"),
		HookEventName:  stringField(raw, "hook_event_name"),
	}
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

// SubmittedText returns the prompt, falling back to content.
func (p Payload) SubmittedText() string {
	if p.Prompt != "" {
		return p.Prompt
	}
	return p.Content
}

// WorkDir returns the payload's cwd, falling back to the process working directory.
func (p Payload) WorkDir() string {
	if p.Cwd != "" {
		return p.Cwd
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
