package model

import "time"

// Conversation pairs exactly one customer and one provider around exactly
// one job. The reference fields are immutable after creation.
type Conversation struct {
	ID         string    `json:"id"`         // conversations.id (uuid)
	JobID      string    `json:"jobId"`      // conversations.job_id
	CustomerID string    `json:"customerId"` // conversations.customer_id
	ProviderID string    `json:"providerId"` // conversations.provider_id
	CreatedAt  time.Time `json:"createdAt"`  // conversations.created_at
}

// Message belongs to one conversation and is append-only, ordered by
// creation time.
type Message struct {
	ID             string    `json:"id"`             // messages.id (uuid)
	ConversationID string    `json:"conversationId"` // messages.conversation_id
	SenderID       string    `json:"senderId"`       // messages.sender_id
	Content        string    `json:"content"`        // messages.content
	CreatedAt      time.Time `json:"createdAt"`      // messages.created_at
}
