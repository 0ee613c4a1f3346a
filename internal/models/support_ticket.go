package models

// Support ticket statuses.
const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
	TicketStatusClosed     = "closed"
)

// Support ticket priorities.
const (
	TicketPriorityLow    = "low"
	TicketPriorityNormal = "normal"
	TicketPriorityHigh   = "high"
)

// SupportTicket is a customer support request with a threaded reply history.
type SupportTicket struct {
	BaseModel

	UserID   string `gorm:"type:uuid;not null;index" json:"user_id"`
	User     *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Subject  string `gorm:"not null" json:"subject"`
	Body     string `gorm:"type:text;not null" json:"body"`
	Status   string `gorm:"type:varchar(32);default:'open';index" json:"status"`
	Priority string `gorm:"type:varchar(16);default:'normal'" json:"priority"`

	Replies []TicketReply `gorm:"foreignKey:TicketID" json:"replies,omitempty"`
}

// TicketReply is a single message in a ticket thread.
type TicketReply struct {
	BaseModel

	TicketID string `gorm:"type:uuid;not null;index" json:"ticket_id"`
	AuthorID string `gorm:"type:uuid;not null" json:"author_id"`
	Author   *User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Body     string `gorm:"type:text;not null" json:"body"`
}

// ValidTicketStatus reports whether the value belongs to the ticket status set.
func ValidTicketStatus(status string) bool {
	switch status {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}
