package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

type AuthService struct {
	repo ports.APIKeyRepository
}

func NewAuthService(repo ports.APIKeyRepository) *AuthService {
	return &AuthService{repo: repo}
}

// Authenticate resolves a bearer token to its key. Unknown, inactive and
// actor-less keys are all reported as ErrUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	hash := HashToken(token)
	apiKey, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Active || apiKey.TenantID == uuid.Nil {
		return domain.APIKey{}, ErrUnauthorized
	}
	if err := apiKey.Actor().Validate(); err != nil {
		return domain.APIKey{}, ErrUnauthorized
	}
	return apiKey, nil
}

type IssueKeyInput struct {
	TenantID   uuid.UUID
	Name       string
	ActorID    uuid.UUID
	ActorName  string
	ActorRoles []string
}

// IssueKey stores a new key and returns the plain token. The token is
// never persisted; only its hash is.
func (s *AuthService) IssueKey(ctx context.Context, in IssueKeyInput) (string, domain.APIKey, error) {
	if in.TenantID == uuid.Nil {
		return "", domain.APIKey{}, fmt.Errorf("%w: tenant id is required", domain.ErrInvalidInput)
	}
	if in.ActorID == uuid.Nil {
		in.ActorID = uuid.New()
	}
	key := domain.APIKey{
		TenantID:   in.TenantID,
		Name:       strings.TrimSpace(in.Name),
		ActorID:    in.ActorID,
		ActorName:  strings.TrimSpace(in.ActorName),
		ActorRoles: in.ActorRoles,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := key.Actor().Validate(); err != nil {
		return "", domain.APIKey{}, err
	}

	token, err := newToken()
	if err != nil {
		return "", domain.APIKey{}, err
	}
	key.TokenHash = HashToken(token)
	if err := s.repo.Upsert(ctx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return token, key, nil
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
