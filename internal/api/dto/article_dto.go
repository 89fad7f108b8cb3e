package dto

import "time"

// ArticleResponse represents a knowledge-base article.
type ArticleResponse struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	Tags             []string   `json:"tags"`
	SourceTicket     *string    `json:"source_ticket,omitempty"`
	HelpfulVotes     int        `json:"helpful_votes"`
	TotalVotes       int        `json:"total_votes"`
	HelpfulnessScore int        `json:"helpfulness_score"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RateArticleRequest payload.
type RateArticleRequest struct {
	Helpful *bool `json:"helpful"`
}
