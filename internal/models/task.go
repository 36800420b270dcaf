package models

import "time"

// Task status values.
const (
	TaskPending    = "pending"
	TaskProcessing = "processing"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
	TaskCancelled  = "cancelled"
)

// TaskPayload is a unit of agent work placed on the task queue.
type TaskPayload struct {
	TaskID         string    `json:"task_id"`
	TenantID       string    `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	ClientType     string    `json:"client_type"`
	CreatedAt      time.Time `json:"created_at"`
}
