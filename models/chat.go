package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// MessageRole is the author of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ContentPart is one element of structured message content.
type ContentPart struct {
	Type  string `json:"type"` // "text" or "image"
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// MessageContent is either a plain string or a list of parts on the wire.
type MessageContent struct {
	Text  string
	Parts []ContentPart
	// IsParts records which wire form was used.
	IsParts bool
}

var errUnsupportedContent = errors.New("message content must be a string or an array of parts")

// UnmarshalJSON accepts a JSON string or an array of parts.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = MessageContent{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = MessageContent{Text: s}
		return nil
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = MessageContent{Parts: parts, IsParts: true}
		return nil
	default:
		return errUnsupportedContent
	}
}

// MarshalJSON writes the same wire form that was read.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsParts {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// Empty reports whether there is neither text nor any part.
func (c MessageContent) Empty() bool {
	return c.Text == "" && len(c.Parts) == 0
}

// PlainText returns the string content, or the text parts joined by newlines.
func (c MessageContent) PlainText() string {
	if !c.IsParts {
		return c.Text
	}
	var texts []string
	for _, p := range c.Parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ChatMessage is one turn of the conversation.
type ChatMessage struct {
	Role    MessageRole    `json:"role"`
	Content MessageContent `json:"content"`
}

// ChatReply is the assistant answer returned to the caller.
type ChatReply struct {
	ID        string            `json:"id"`
	Role      MessageRole       `json:"role"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"createdAt"`
	Craftsmen []CraftsmanRecord `json:"craftsmen,omitempty"`
}
