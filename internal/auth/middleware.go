package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/resolvemeq/agent-service/internal/domain"
	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	SubjectID   string
}

// Middleware validates bearer tokens and the chat-bot integration API key.
type Middleware struct {
	tokens        *TokenManager
	botAPIKeyHash string
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, botAPIKeyHash string) *Middleware {
	return &Middleware{tokens: tokens, botAPIKeyHash: botAPIKeyHash}
}

// Handle enforces bearer authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{
		SubjectType: claims.Subject,
		SubjectID:   claims.SubjectID,
	})
	return c.Next()
}

// HandleBot authenticates the chat-bot integration via its API key header.
func (m *Middleware) HandleBot(c *fiber.Ctx) error {
	if m.botAPIKeyHash == "" {
		return apperrors.NewForbidden("bot integration disabled")
	}
	key := c.Get("X-Api-Key")
	if key == "" {
		return apperrors.NewUnauthorized("missing api key")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.botAPIKeyHash), []byte(key)); err != nil {
		return apperrors.NewUnauthorized("invalid api key")
	}
	c.Locals(principalKey, &Principal{SubjectType: domain.SubjectTypeService, SubjectID: "chat-bot"})
	return c.Next()
}

// PrincipalFromContext extracts the authenticated principal.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok
}

// RequireUser ensures an END_USER is authenticated.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeUser {
			return apperrors.NewForbidden("end-user required")
		}
		return c.Next()
	}
}

// RequireStaff ensures a STAFF principal.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeStaff {
			return apperrors.NewForbidden("staff required")
		}
		return c.Next()
	}
}
