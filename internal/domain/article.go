package domain

import "time"

// Article is a knowledge-base entry distilled from successful agent
// resolutions.
type Article struct {
	ID           string
	Title        string
	Content      string
	Tags         []string
	SourceTicket *string
	HelpfulVotes int
	TotalVotes   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HelpfulnessScore returns the helpful-vote percentage, 0 when unrated.
func (a *Article) HelpfulnessScore() int {
	if a.TotalVotes == 0 {
		return 0
	}
	return a.HelpfulVotes * 100 / a.TotalVotes
}
