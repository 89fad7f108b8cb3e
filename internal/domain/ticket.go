package domain

import "time"

// TicketStatus enumerates lifecycle states driven by the autonomous engine.
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "OPEN"
	TicketStatusClarifying      TicketStatus = "CLARIFYING"
	TicketStatusSolutionPending TicketStatus = "SOLUTION_PENDING"
	TicketStatusEscalated       TicketStatus = "ESCALATED"
	TicketStatusResolved        TicketStatus = "RESOLVED"
	TicketStatusClosed          TicketStatus = "CLOSED"
)

// Terminal reports whether the autonomous engine is done with a ticket in
// this status. ESCALATED and CLOSED hand control back to humans; only a
// fresh ticket restarts the cycle.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusEscalated || s == TicketStatusClosed
}

// TicketCategory enumerates supported issue categories.
type TicketCategory string

const (
	CategoryWifi     TicketCategory = "wifi"
	CategoryLaptop   TicketCategory = "laptop"
	CategoryVPN      TicketCategory = "vpn"
	CategoryPrinter  TicketCategory = "printer"
	CategoryEmail    TicketCategory = "email"
	CategorySoftware TicketCategory = "software"
	CategoryHardware TicketCategory = "hardware"
	CategoryNetwork  TicketCategory = "network"
	CategoryAccount  TicketCategory = "account"
	CategoryAccess   TicketCategory = "access"
	CategoryPhone    TicketCategory = "phone"
	CategoryServer   TicketCategory = "server"
	CategorySecurity TicketCategory = "security"
	CategoryCloud    TicketCategory = "cloud"
	CategoryStorage  TicketCategory = "storage"
	CategoryOther    TicketCategory = "other"
)

// Ticket is the aggregate for support requests. Tickets are never deleted,
// only status-transitioned; their interaction history is append-only.
type Ticket struct {
	ID           string
	ExternalKey  string
	RequesterID  string
	Title        string
	Description  string
	Category     TicketCategory
	Tags         []string
	Status       TicketStatus
	AssignedTeam *string
	AssigneeID   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
}

// HasTag reports whether the ticket carries the given tag.
func (t *Ticket) HasTag(tag string) bool {
	for _, candidate := range t.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}
