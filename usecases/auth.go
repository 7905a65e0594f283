package usecases

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"telemetry-server/entities"
	"telemetry-server/repositories"
	"telemetry-server/services"
)

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type AuthUseCase struct {
	users             repositories.UserRepository
	hasher            services.PasswordHasher
	tokens            *services.TokenIssuer
	minPasswordLength int
}

func NewAuthUseCase(users repositories.UserRepository, hasher services.PasswordHasher, tokens *services.TokenIssuer, minPasswordLength int) *AuthUseCase {
	return &AuthUseCase{
		users:             users,
		hasher:            hasher,
		tokens:            tokens,
		minPasswordLength: minPasswordLength,
	}
}

// Register creates a user under the normalized username.
func (uc *AuthUseCase) Register(ctx context.Context, username, password string) (*entities.User, error) {
	username = entities.NormalizeUsername(username)
	if username == "" {
		return nil, entities.Errorf(entities.ErrInvalidArgument, "Username is required")
	}

	_, err := uc.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return nil, entities.Errorf(entities.ErrConflict, "Username already registered")
	case !errors.Is(err, entities.ErrNotFound):
		return nil, err
	}

	if utf8.RuneCountInString(password) < uc.minPasswordLength {
		return nil, entities.Errorf(entities.ErrInvalidArgument, "Password must be at least %d characters long", uc.minPasswordLength)
	}

	hash, err := uc.hasher.Hash(password)
	if err != nil {
		return nil, entities.Errorf(entities.ErrInvalidArgument, "Password cannot be used: %v", err)
	}

	user := &entities.User{Username: username, PasswordHash: hash}
	if err := uc.users.Create(ctx, user); err != nil {
		if errors.Is(err, entities.ErrConflict) {
			return nil, entities.Errorf(entities.ErrConflict, "Username already registered")
		}
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues a bearer token.
func (uc *AuthUseCase) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	invalid := entities.Errorf(entities.ErrUnauthenticated, "Invalid username or password")

	user, err := uc.users.GetByUsername(ctx, entities.NormalizeUsername(username))
	if errors.Is(err, entities.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}
	if !uc.hasher.Verify(password, user.PasswordHash) {
		return nil, invalid
	}

	token, err := uc.tokens.Issue(user.Username)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(uc.tokens.TTL().Seconds()),
	}, nil
}

// Authenticate resolves a bearer token to its user.
func (uc *AuthUseCase) Authenticate(ctx context.Context, token string) (*entities.User, error) {
	if token == "" {
		return nil, entities.Errorf(entities.ErrUnauthenticated, "Not authenticated")
	}
	username, err := uc.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	user, err := uc.users.GetByUsername(ctx, username)
	if errors.Is(err, entities.ErrNotFound) {
		return nil, entities.Errorf(entities.ErrUnauthenticated, "User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve token subject: %w", err)
	}
	return user, nil
}
