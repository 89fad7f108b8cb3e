package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resolvemeq/agent-service/internal/domain"
)

// InteractionRepository reads the append-only audit trail. Writes go through
// TicketTx so they commit with the status transition that caused them.
type InteractionRepository interface {
	ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Interaction, error)
	LatestByKind(ctx context.Context, ticketID string, kind domain.InteractionKind, after time.Time) (*domain.Interaction, error)
}

type interactionRepository struct {
	pool *pgxpool.Pool
}

// NewInteractionRepository builds the repository.
func NewInteractionRepository(pool *pgxpool.Pool) InteractionRepository {
	return &interactionRepository{pool: pool}
}

func (r *interactionRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Interaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT id, ticket_id, kind, actor_type, actor_id, decision, content, created_at
        FROM (
            SELECT id, ticket_id, kind, actor_type, actor_id, decision, content, created_at
            FROM interactions WHERE ticket_id=$1 ORDER BY created_at DESC LIMIT $2
        ) latest ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Interaction
	for rows.Next() {
		var entry domain.Interaction
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Kind,
			&entry.ActorType,
			&entry.ActorID,
			&entry.Decision,
			&entry.Content,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *interactionRepository) LatestByKind(ctx context.Context, ticketID string, kind domain.InteractionKind, after time.Time) (*domain.Interaction, error) {
	const query = `
        SELECT id, ticket_id, kind, actor_type, actor_id, decision, content, created_at
        FROM interactions
        WHERE ticket_id=$1 AND kind=$2 AND created_at > $3
        ORDER BY created_at DESC LIMIT 1`
	var entry domain.Interaction
	if err := r.pool.QueryRow(ctx, query, ticketID, kind, after).Scan(
		&entry.ID,
		&entry.TicketID,
		&entry.Kind,
		&entry.ActorType,
		&entry.ActorID,
		&entry.Decision,
		&entry.Content,
		&entry.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}
