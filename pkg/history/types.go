package history

import (
	"encoding/json"
	"time"
)

// Action categorizes a history entry
type Action string

const (
	ActionCreate     Action = "document.create"
	ActionUpdate     Action = "document.update"
	ActionDelete     Action = "document.delete"
	ActionView       Action = "document.view"
	ActionDownload   Action = "document.download"
	ActionPrint      Action = "document.print"
	ActionCopy       Action = "document.copy"
	ActionTransition Action = "workflow.transition"
)

// Entry is a single immutable history record
type Entry struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Action     Action `json:"action"`

	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`
	Reason     string `json:"reason,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ToJSON converts the entry to JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter narrows a history search
type SearchFilter struct {
	DocumentID *int64
	UserID     *int64
	Actions    []Action
	StartTime  *time.Time
	EndTime    *time.Time

	Limit  int
	Offset int
}

// Stats summarizes the activity trail
type Stats struct {
	TotalEntries    int64            `json:"total_entries"`
	EntriesByAction map[Action]int64 `json:"entries_by_action"`
	UniqueUsers     int64            `json:"unique_users"`
	UniqueDocuments int64            `json:"unique_documents"`
}

// ExportFormat selects the export serialization
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)
