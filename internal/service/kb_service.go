package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/resolvemeq/agent-service/internal/domain"
	"github.com/resolvemeq/agent-service/internal/events"
	"github.com/resolvemeq/agent-service/internal/repository"
	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

// KBService maintains the knowledge base. It listens for successful agent
// resolutions and distills each one into an article, so repeated issues get
// answered from accumulated solutions.
type KBService struct {
	articles repository.ArticleRepository
	logger   *zap.Logger
}

// NewKBService builds the service and subscribes it to agent decisions.
func NewKBService(dispatcher events.Dispatcher, articles repository.ArticleRepository, logger *zap.Logger) *KBService {
	service := &KBService{articles: articles, logger: logger}
	dispatcher.Subscribe(events.EventAgentDecision, service.onAgentDecision)
	return service
}

func (s *KBService) onAgentDecision(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AgentDecisionPayload)
	if !ok {
		return nil
	}
	if payload.NewStatus != domain.TicketStatusResolved || len(payload.SolutionSteps) == 0 {
		return nil
	}

	// One article per source ticket; re-resolutions after a negative
	// confirmation must not duplicate it.
	if existing, err := s.articles.GetBySourceTicket(ctx, event.TicketID); err == nil && existing != nil {
		return nil
	}

	ticketID := event.TicketID
	article := &domain.Article{
		Title:        payload.Title,
		Content:      renderArticle(payload),
		Tags:         articleTags(payload),
		SourceTicket: &ticketID,
	}
	if err := s.articles.Create(ctx, article); err != nil {
		s.logger.Warn("failed to create knowledge-base article",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
		return err
	}
	s.logger.Info("knowledge-base article created",
		zap.String("article_id", article.ID),
		zap.String("ticket_id", event.TicketID))
	return nil
}

// ListArticles pages through the knowledge base.
func (s *KBService) ListArticles(ctx context.Context, limit, offset int) ([]domain.Article, error) {
	articles, err := s.articles.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return articles, nil
}

// GetArticle fetches one article.
func (s *KBService) GetArticle(ctx context.Context, id string) (*domain.Article, error) {
	article, err := s.articles.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return article, nil
}

// RateArticle records a helpfulness vote and returns the updated article.
func (s *KBService) RateArticle(ctx context.Context, id string, helpful bool) (*domain.Article, error) {
	article, err := s.articles.Rate(ctx, id, helpful)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return article, nil
}

func renderArticle(payload events.AgentDecisionPayload) string {
	var b strings.Builder
	b.WriteString("## Problem\n")
	b.WriteString(payload.Title)
	b.WriteString("\n\n## Resolution\n")
	for i, step := range payload.SolutionSteps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	if payload.Reasoning != "" {
		b.WriteString("\n## Notes\n")
		b.WriteString(payload.Reasoning)
		b.WriteString("\n")
	}
	return b.String()
}

func articleTags(payload events.AgentDecisionPayload) []string {
	tags := append([]string{}, payload.Tags...)
	if payload.Category != "" {
		for _, tag := range tags {
			if tag == payload.Category {
				return tags
			}
		}
		tags = append(tags, payload.Category)
	}
	return tags
}
