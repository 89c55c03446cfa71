package schema

import (
	"encoding/json"
	"fmt"
)

// TranscriptSegment is one spoken span in a session transcript.
type TranscriptSegment struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Transcript is the structured value stored in sessions.transcript.
type Transcript struct {
	Segments []TranscriptSegment `json:"segments"`
}

// TemplateSection is one titled section of a note template.
type TemplateSection struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// MessagePart is one piece of a chat message body (text, tool call, etc.).
type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// EncodeTranscript serializes a transcript for the sessions.transcript cell.
func EncodeTranscript(t Transcript) (string, error) { return encode(t) }

// DecodeTranscript parses a sessions.transcript cell.
func DecodeTranscript(s string) (Transcript, error) {
	var t Transcript
	err := decode(s, &t)
	return t, err
}

// EncodeStringList serializes a list cell (spoken languages, jargons,
// ignored notification platforms).
func EncodeStringList(v []string) (string, error) { return encode(v) }

// DecodeStringList parses a list cell. An empty cell decodes to nil.
func DecodeStringList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var v []string
	err := decode(s, &v)
	return v, err
}

// EncodeTemplateSections serializes templates.sections.
func EncodeTemplateSections(v []TemplateSection) (string, error) { return encode(v) }

// DecodeTemplateSections parses templates.sections.
func DecodeTemplateSections(s string) ([]TemplateSection, error) {
	var v []TemplateSection
	err := decode(s, &v)
	return v, err
}

// EncodeMessageParts serializes chat_messages.parts.
func EncodeMessageParts(v []MessagePart) (string, error) { return encode(v) }

// DecodeMessageParts parses chat_messages.parts.
func DecodeMessageParts(s string) ([]MessagePart, error) {
	var v []MessagePart
	err := decode(s, &v)
	return v, err
}

// EncodeMessageMetadata serializes chat_messages.metadata.
func EncodeMessageMetadata(v map[string]string) (string, error) { return encode(v) }

// DecodeMessageMetadata parses chat_messages.metadata.
func DecodeMessageMetadata(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var v map[string]string
	err := decode(s, &v)
	return v, err
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding cell: %w", err)
	}
	return string(b), nil
}

func decode(s string, v any) error {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decoding cell: %w", err)
	}
	return nil
}
