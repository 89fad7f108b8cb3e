package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resolvemeq/agent-service/internal/domain"
)

// ArticleRepository stores knowledge-base articles distilled from resolved
// tickets.
type ArticleRepository interface {
	Create(ctx context.Context, article *domain.Article) error
	GetByID(ctx context.Context, id string) (*domain.Article, error)
	GetBySourceTicket(ctx context.Context, ticketID string) (*domain.Article, error)
	List(ctx context.Context, limit, offset int) ([]domain.Article, error)
	Rate(ctx context.Context, id string, helpful bool) (*domain.Article, error)
}

type articleRepository struct {
	pool *pgxpool.Pool
}

// NewArticleRepository builds the repository.
func NewArticleRepository(pool *pgxpool.Pool) ArticleRepository {
	return &articleRepository{pool: pool}
}

const articleColumns = `id, title, content, tags, source_ticket, helpful_votes, total_votes, created_at, updated_at`

func (r *articleRepository) Create(ctx context.Context, article *domain.Article) error {
	const query = `
        INSERT INTO kb_articles (title, content, tags, source_ticket)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		article.Title,
		article.Content,
		article.Tags,
		article.SourceTicket,
	).Scan(&article.ID, &article.CreatedAt, &article.UpdatedAt)
}

func (r *articleRepository) GetByID(ctx context.Context, id string) (*domain.Article, error) {
	return scanArticle(r.pool.QueryRow(ctx,
		`SELECT `+articleColumns+` FROM kb_articles WHERE id=$1`, id))
}

func (r *articleRepository) GetBySourceTicket(ctx context.Context, ticketID string) (*domain.Article, error) {
	return scanArticle(r.pool.QueryRow(ctx,
		`SELECT `+articleColumns+` FROM kb_articles WHERE source_ticket=$1`, ticketID))
}

func (r *articleRepository) List(ctx context.Context, limit, offset int) ([]domain.Article, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+articleColumns+` FROM kb_articles ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *article)
	}
	return result, rows.Err()
}

func (r *articleRepository) Rate(ctx context.Context, id string, helpful bool) (*domain.Article, error) {
	const query = `
        UPDATE kb_articles
        SET total_votes = total_votes + 1,
            helpful_votes = helpful_votes + CASE WHEN $2 THEN 1 ELSE 0 END,
            updated_at = NOW()
        WHERE id=$1
        RETURNING ` + articleColumns
	return scanArticle(r.pool.QueryRow(ctx, query, id, helpful))
}

func scanArticle(row pgx.Row) (*domain.Article, error) {
	var article domain.Article
	if err := row.Scan(
		&article.ID,
		&article.Title,
		&article.Content,
		&article.Tags,
		&article.SourceTicket,
		&article.HelpfulVotes,
		&article.TotalVotes,
		&article.CreatedAt,
		&article.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &article, nil
}
