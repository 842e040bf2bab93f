package users

import (
	"context"
	"strings"

	"github.com/osmbc/articles/internal/models"
)

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertFromClaims creates or updates the user described by verified token
// claims. The OSM user name comes from preferred_username. It returns nil
// when the claims carry no subject.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, nil
	}
	osmUser, _ := claims["preferred_username"].(string)
	if osmUser == "" {
		osmUser = sub
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	locale, _ := claims["locale"].(string)
	u := &models.User{
		Sub:      sub,
		OSMUser:  osmUser,
		Email:    email,
		Name:     name,
		Language: strings.ToUpper(locale),
	}
	return s.repo.UpsertBySub(ctx, u)
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}
