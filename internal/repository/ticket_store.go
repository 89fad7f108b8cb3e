package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resolvemeq/agent-service/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	RequesterID *string
	Statuses    []domain.TicketStatus
	Categories  []domain.TicketCategory
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketTx exposes the writes permitted inside an exclusive ticket section.
// All writes commit atomically when the enclosing WithTicket call returns
// nil, and roll back together otherwise.
type TicketTx interface {
	Ticket() *domain.Ticket
	UpdateStatus(ctx context.Context, status domain.TicketStatus) error
	SetAssignment(ctx context.Context, team, assignee *string) error
	AppendInteraction(ctx context.Context, interaction *domain.Interaction) error
}

// TicketStore encapsulates ticket persistence. WithTicket provides the
// single-writer-per-ticket guarantee the engine relies on: the ticket row
// stays locked for the duration of fn.
type TicketStore interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	WithTicket(ctx context.Context, ticketID string, fn func(tx TicketTx) error) error
}

type ticketStore struct {
	pool *pgxpool.Pool
}

// NewTicketStore instantiates the pgx-backed store.
func NewTicketStore(pool *pgxpool.Pool) TicketStore {
	return &ticketStore{pool: pool}
}

const ticketColumns = `id, external_key, requester_id, title, description, category, tags,
               status, assigned_team, assignee_id, created_at, updated_at, closed_at`

func (s *ticketStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, requester_id, title, description, category, tags, status, assigned_team, assignee_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return s.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.RequesterID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Tags,
		ticket.Status,
		ticket.AssignedTeam,
		ticket.AssigneeID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (s *ticketStore) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return scanTicket(s.pool.QueryRow(ctx, query, id))
}

func (s *ticketStore) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE external_key=$1`, ticketColumns)
	return scanTicket(s.pool.QueryRow(ctx, query, key))
}

func (s *ticketStore) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, category := range filter.Categories {
			args = append(args, category)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// WithTicket locks the ticket row FOR UPDATE and runs fn inside the
// transaction. Concurrent callers for the same ticket serialize on the row
// lock; the lock is released on every exit path when the transaction ends.
func (s *ticketStore) WithTicket(ctx context.Context, ticketID string, fn func(tx TicketTx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer pgtx.Rollback(ctx) //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1 FOR UPDATE`, ticketColumns)
	ticket, err := scanTicket(pgtx.QueryRow(ctx, query, ticketID))
	if err != nil {
		return err
	}

	if err := fn(&ticketTx{tx: pgtx, ticket: ticket}); err != nil {
		return err
	}
	return pgtx.Commit(ctx)
}

type ticketTx struct {
	tx     pgx.Tx
	ticket *domain.Ticket
}

func (t *ticketTx) Ticket() *domain.Ticket {
	return t.ticket
}

func (t *ticketTx) UpdateStatus(ctx context.Context, status domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET status=$1, closed_at=$2, updated_at=NOW()
        WHERE id=$3
        RETURNING updated_at`
	var closedAt *time.Time
	if status == domain.TicketStatusClosed {
		now := time.Now()
		closedAt = &now
	}
	if err := t.tx.QueryRow(ctx, query, status, closedAt, t.ticket.ID).Scan(&t.ticket.UpdatedAt); err != nil {
		return err
	}
	t.ticket.Status = status
	t.ticket.ClosedAt = closedAt
	return nil
}

func (t *ticketTx) SetAssignment(ctx context.Context, team, assignee *string) error {
	const query = `
        UPDATE tickets SET assigned_team=$1, assignee_id=$2, updated_at=NOW()
        WHERE id=$3
        RETURNING updated_at`
	if err := t.tx.QueryRow(ctx, query, team, assignee, t.ticket.ID).Scan(&t.ticket.UpdatedAt); err != nil {
		return err
	}
	t.ticket.AssignedTeam = team
	t.ticket.AssigneeID = assignee
	return nil
}

func (t *ticketTx) AppendInteraction(ctx context.Context, interaction *domain.Interaction) error {
	const query = `
        INSERT INTO interactions (ticket_id, kind, actor_type, actor_id, decision, content)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return t.tx.QueryRow(ctx, query,
		interaction.TicketID,
		interaction.Kind,
		interaction.ActorType,
		interaction.ActorID,
		interaction.Decision,
		interaction.Content,
	).Scan(&interaction.ID, &interaction.CreatedAt)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.RequesterID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Tags,
		&ticket.Status,
		&ticket.AssignedTeam,
		&ticket.AssigneeID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
