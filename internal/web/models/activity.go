package models

import "time"

// Activity actions
const (
	ActionLogin            = "login"
	ActionLogout           = "logout"
	ActionRecordInsert     = "record.insert"
	ActionRecordUpdate     = "record.update"
	ActionRecordDelete     = "record.delete"
	ActionDocumentGenerate = "document.generate"
	ActionTemplateUpload   = "template.upload"
	ActionTemplateDelete   = "template.delete"
)

// ActivityEntry is one operator action
type ActivityEntry struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details"` // JSON
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActivityFilter for filtering the activity log
type ActivityFilter struct {
	UserID     string
	Action     string
	EntityType string
	Limit      int
	Offset     int
}
