package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/resolvemeq/agent-service/internal/api/dto"
	"github.com/resolvemeq/agent-service/internal/domain"
	"github.com/resolvemeq/agent-service/internal/service"
	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

// KBHandler serves knowledge-base articles.
type KBHandler struct {
	service *service.KBService
}

// NewKBHandler constructs handler.
func NewKBHandler(kbService *service.KBService) *KBHandler {
	return &KBHandler{service: kbService}
}

// ListArticles GET /kb/articles.
func (h *KBHandler) ListArticles(c *fiber.Ctx) error {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	articles, err := h.service.ListArticles(c.UserContext(), pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.ArticleResponse, 0, len(articles))
	for i := range articles {
		items = append(items, articleResponse(&articles[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetArticle GET /kb/articles/:id.
func (h *KBHandler) GetArticle(c *fiber.Ctx) error {
	article, err := h.service.GetArticle(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": articleResponse(article)})
}

// RateArticle POST /kb/articles/:id/rate.
func (h *KBHandler) RateArticle(c *fiber.Ctx) error {
	var req dto.RateArticleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Helpful == nil {
		return apperrors.NewValidationError("helpful required", nil)
	}
	article, err := h.service.RateArticle(c.UserContext(), c.Params("id"), *req.Helpful)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": articleResponse(article)})
}

func articleResponse(article *domain.Article) dto.ArticleResponse {
	return dto.ArticleResponse{
		ID:               article.ID,
		Title:            article.Title,
		Content:          article.Content,
		Tags:             article.Tags,
		SourceTicket:     article.SourceTicket,
		HelpfulVotes:     article.HelpfulVotes,
		TotalVotes:       article.TotalVotes,
		HelpfulnessScore: article.HelpfulnessScore(),
		CreatedAt:        article.CreatedAt,
		UpdatedAt:        article.UpdatedAt,
	}
}
