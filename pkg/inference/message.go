package inference

import (
	"encoding/base64"
	"net/http"
)

// Role defines message roles in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message. Images hold encoded image files (PNG or
// JPEG) attached to a user message.
type Message struct {
	Role    Role
	Content string
	Images  [][]byte
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewImageMessage creates a user message with attached images.
func NewImageMessage(prompt string, images ...[]byte) Message {
	return Message{Role: RoleUser, Content: prompt, Images: images}
}

// ImageMIME sniffs the MIME type of an encoded image, defaulting to PNG.
func ImageMIME(data []byte) string {
	switch ct := http.DetectContentType(data); ct {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return ct
	default:
		return "image/png"
	}
}

// DataURL encodes an image as a base64 data URL.
func DataURL(data []byte) string {
	return "data:" + ImageMIME(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}
