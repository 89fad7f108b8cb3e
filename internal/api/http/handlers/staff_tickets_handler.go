package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/resolvemeq/agent-service/internal/api/dto"
	"github.com/resolvemeq/agent-service/internal/auth"
	"github.com/resolvemeq/agent-service/internal/domain"
	"github.com/resolvemeq/agent-service/internal/service"
	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

// StaffTicketsHandler exposes the staff view: every ticket, full audit
// history, and the CSV export.
type StaffTicketsHandler struct {
	service *service.TicketService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(ticketService *service.TicketService) *StaffTicketsHandler {
	return &StaffTicketsHandler{service: ticketService}
}

// ListTickets GET /staff/tickets.
func (h *StaffTicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.service.ListTickets(c.UserContext(), parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /staff/tickets/:id.
func (h *StaffTicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, history, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, history)})
}

// CloseTicket POST /staff/tickets/:id/close.
func (h *StaffTicketsHandler) CloseTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("staff required")
	}
	ticket, err := h.service.CloseTicket(c.UserContext(), domain.SubjectTypeStaff, principal.SubjectID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ExportTickets GET /staff/tickets/export.
func (h *StaffTicketsHandler) ExportTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	// Export caps at 10k rows; beyond that, narrow the filter.
	filter.Limit = 10000
	filter.Offset = 0

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="tickets-%s.csv"`, time.Now().Format("2006-01-02")))
	return h.service.ExportCSV(c.UserContext(), filter, c.Response().BodyWriter())
}
