package nlp

import (
	"context"
)

// Client defines the interface for vision-language model operations.
type Client interface {
	// Chat sends a chat completion request and returns the response. When
	// jsonOutput is set the model is asked for a single JSON object.
	Chat(ctx context.Context, messages []Message, jsonOutput bool) (*Response, error)

	// Close cleans up any resources.
	Close() error
}

// Role is the author of a message.
type Role string

const (
	// RoleSystem represents a system message.
	RoleSystem Role = "system"
	// RoleUser represents a user message.
	RoleUser Role = "user"
	// RoleAssistant represents an assistant message.
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
	// Images are encoded frames (JPEG or PNG) attached to the message.
	Images [][]byte
}

// TokenUsage reports what a request cost.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the model's reply.
type Response struct {
	Content      string
	FinishReason string
	Model        string
	TokensUsed   *TokenUsage
}

// NewMessage creates a new message with the specified role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:    role,
		Content: content,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewImageMessage creates a user message carrying images.
func NewImageMessage(content string, images ...[]byte) Message {
	return Message{
		Role:    RoleUser,
		Content: content,
		Images:  images,
	}
}
