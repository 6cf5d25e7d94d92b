package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/policy"
)

type RegisterInput struct {
	Username    string `json:"username" validate:"required,min=3,max=150,username"`
	DisplayName string `json:"display_name" validate:"max=150"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResult struct {
	User   models.User
	Tokens TokenPair
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	user, err := s.CreateUser(ctx, in, models.RoleUser)
	if err != nil {
		return AuthResult{}, err
	}
	tokens, err := s.Tokens.IssuePair(user)
	if err != nil {
		return AuthResult{}, WrapError(err, "issue tokens")
	}
	s.Log.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return AuthResult{User: user, Tokens: tokens}, nil
}

// CreateUser stores a new account with the given role. It backs both
// self-registration and the create-admin command.
func (s *Service) CreateUser(ctx context.Context, in RegisterInput, role models.Role) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := validateStruct(in); err != nil {
		return models.User{}, err
	}
	if !role.Valid() {
		return models.User{}, ErrBadRequest("Unknown role")
	}
	hash, err := s.Tokens.HashPassword(in.Password)
	if err != nil {
		return models.User{}, WrapError(err, "hash password")
	}
	now := s.now()
	user := models.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		DisplayName:  in.DisplayName,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}
	if err := s.Store.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return models.User{}, ErrConflict("Username is already taken")
		}
		return models.User{}, WrapError(err, "create user")
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validateStruct(in); err != nil {
		return AuthResult{}, err
	}
	user, err := s.Store.GetUserByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return AuthResult{}, ErrUnauthorized("Invalid username or password")
		}
		return AuthResult{}, WrapError(err, "load user")
	}
	if !s.Tokens.VerifyPassword(in.Password, user.PasswordHash) {
		return AuthResult{}, ErrUnauthorized("Invalid username or password")
	}
	now := s.now()
	if err := s.Store.TouchLogin(ctx, user.ID, now); err != nil {
		s.Log.Warn("record last login failed", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}
	tokens, err := s.Tokens.IssuePair(user)
	if err != nil {
		return AuthResult{}, WrapError(err, "issue tokens")
	}
	return AuthResult{User: user, Tokens: tokens}, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued with the user's current role.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	claims, err := s.Tokens.ParseToken(refreshToken, TokenTypeRefresh)
	if err != nil {
		return AuthResult{}, ErrUnauthorized("Invalid refresh token")
	}
	if err := s.checkRevoked(ctx, claims.ID); err != nil {
		return AuthResult{}, err
	}
	user, err := s.Store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return AuthResult{}, ErrUnauthorized("Invalid refresh token")
		}
		return AuthResult{}, WrapError(err, "load user")
	}
	if err := s.revoke(ctx, claims); err != nil {
		return AuthResult{}, err
	}
	tokens, err := s.Tokens.IssuePair(user)
	if err != nil {
		return AuthResult{}, WrapError(err, "issue tokens")
	}
	return AuthResult{User: user, Tokens: tokens}, nil
}

// Logout revokes the access token and, when given, the refresh token.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := s.Tokens.ParseToken(accessToken, TokenTypeAccess)
	if err != nil {
		return ErrUnauthorized("Invalid access token")
	}
	if err := s.revoke(ctx, claims); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	refreshClaims, err := s.Tokens.ParseToken(refreshToken, TokenTypeRefresh)
	if err != nil || refreshClaims.Subject != claims.Subject {
		return nil
	}
	return s.revoke(ctx, refreshClaims)
}

// Authenticate resolves an access token into the actor it belongs to. The
// role comes from the store, so role changes apply to live tokens.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (models.Actor, error) {
	claims, err := s.Tokens.ParseToken(accessToken, TokenTypeAccess)
	if err != nil {
		return models.Actor{}, ErrUnauthorized("Invalid or expired token")
	}
	if err := s.checkRevoked(ctx, claims.ID); err != nil {
		return models.Actor{}, err
	}
	user, err := s.Store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return models.Actor{}, ErrUnauthorized("Invalid or expired token")
		}
		return models.Actor{}, WrapError(err, "load user")
	}
	return user.Actor(), nil
}

func (s *Service) checkRevoked(ctx context.Context, jti string) error {
	if s.Revoker == nil {
		return nil
	}
	revoked, err := s.Revoker.IsRevoked(ctx, jti)
	if err != nil {
		return WrapError(err, "check token revocation")
	}
	if revoked {
		return ErrUnauthorized("Token has been revoked")
	}
	return nil
}

func (s *Service) revoke(ctx context.Context, claims *Claims) error {
	if s.Revoker == nil {
		return nil
	}
	until := s.now().Add(time.Minute)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	return WrapError(s.Revoker.Revoke(ctx, claims.ID, until), "revoke token")
}

func (s *Service) Me(ctx context.Context, actor models.Actor) (models.User, error) {
	if !actor.Authenticated() {
		return models.User{}, ErrUnauthorized("Authentication required")
	}
	user, err := s.Store.GetUserByID(ctx, actor.ID)
	if err != nil {
		return models.User{}, notFoundOr(err, "user")
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, actor models.Actor, page Page) (PageResult[models.User], error) {
	if !s.Policy.CanGlobal(actor, policy.ActionManageUsers) {
		return PageResult[models.User]{}, ErrForbidden("Admin privileges required")
	}
	users, total, err := s.Store.ListUsers(ctx, page)
	if err != nil {
		return PageResult[models.User]{}, WrapError(err, "list users")
	}
	return newPageResult(users, total, page), nil
}

func (s *Service) SetUserRole(ctx context.Context, actor models.Actor, userID string, role models.Role) (models.User, error) {
	if !s.Policy.CanGlobal(actor, policy.ActionManageUsers) {
		return models.User{}, ErrForbidden("Admin privileges required")
	}
	if !role.Valid() {
		return models.User{}, ErrValidation(map[string]string{"role": "must be one of: user admin"})
	}
	if userID == actor.ID && role != models.RoleAdmin {
		return models.User{}, ErrConflict("Admins cannot remove their own admin role")
	}
	if err := s.Store.SetUserRole(ctx, userID, role, s.now()); err != nil {
		return models.User{}, notFoundOr(err, "user")
	}
	user, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, notFoundOr(err, "user")
	}
	s.Log.Info("user role changed",
		zap.String("user_id", userID),
		zap.String("role", string(role)),
		zap.String("by", actor.ID),
	)
	return user, nil
}
