package model

import (
	"encoding/json"
	"time"
)

// Conversation groups a sequence of Messages exchanged in one workspace.
type Conversation struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	OwnerUserID string    `json:"ownerUserId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MessageRole distinguishes the originator of a Message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is a single turn within a Conversation. SourcesSnapshot freezes the
// citations an assistant answer was built from, since chunks can later be
// re-indexed or deleted.
type Message struct {
	ID              string          `json:"id"`
	ConversationID  string          `json:"conversationId"`
	Role            MessageRole     `json:"role"`
	Content         string          `json:"content"`
	SourcesSnapshot json.RawMessage `json:"sourcesSnapshot,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}
