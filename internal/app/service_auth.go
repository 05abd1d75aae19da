package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"flowboard/api/internal/auth"
	"flowboard/api/internal/session"
	"flowboard/api/internal/store"
	"flowboard/api/internal/util"
)

type UserDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthResult is returned by sign-up, sign-in and refresh. The refresh
// token is opaque and single-use; only its hash is stored server-side.
type AuthResult struct {
	User         UserDTO `json:"user"`
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresIn    int     `json:"expiresIn"`
}

func userDTO(u store.User) UserDTO {
	return UserDTO{ID: u.ID, Name: u.Name, Email: u.Email}
}

func (s *Service) SignUp(ctx context.Context, name, email, password string) (AuthResult, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return AuthResult{}, errBadRequest("name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return AuthResult{}, errBadRequest("a valid email is required")
	}
	if len(password) < 8 {
		return AuthResult{}, errBadRequest("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	user := store.User{
		ID:           util.NewID("user"),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return AuthResult{}, domainError(409, "CONFLICT", "An account with this email already exists", nil)
		}
		return AuthResult{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		// Same answer for unknown email and wrong password.
		return AuthResult{}, errUnauthorized("Invalid email or password")
	}
	if err != nil {
		return AuthResult{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return AuthResult{}, errUnauthorized("Invalid email or password")
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token: the presented token is revoked and
// a fresh pair is issued, so a replayed token fails the lookup.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	record, err := s.sessions.Lookup(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return AuthResult{}, errUnauthorized("Refresh token invalid")
		}
		return AuthResult{}, err
	}
	user, err := s.store.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, errUnauthorized("Refresh token invalid")
		}
		return AuthResult{}, err
	}
	if err := s.sessions.Revoke(ctx, auth.HashToken(refreshToken)); err != nil {
		return AuthResult{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, auth.HashToken(refreshToken))
}

// SessionFromToken resolves the caller identity from a bearer access token.
func (s *Service) SessionFromToken(raw string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), raw)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return Session{}, errUnauthorized("Access token expired")
		}
		return Session{}, errUnauthorized("Invalid access token")
	}
	return Session{UserID: claims.Subject, UserName: claims.Name, JTI: claims.JTI}, nil
}

func (s *Service) issueSession(ctx context.Context, user store.User) (AuthResult, error) {
	access, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.Name, util.NewID("jti"), s.cfg.AccessTTL)
	if err != nil {
		return AuthResult{}, err
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}
	now := time.Now()
	record := session.Record{UserID: user.ID, UserName: user.Name, CreatedAt: now}
	if err := s.sessions.Save(ctx, auth.HashToken(refresh), record, now.Add(s.cfg.RefreshTTL)); err != nil {
		return AuthResult{}, fmt.Errorf("save refresh token: %w", err)
	}
	return AuthResult{
		User:         userDTO(user),
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.cfg.AccessTTL.Seconds()),
	}, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("refresh token entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
