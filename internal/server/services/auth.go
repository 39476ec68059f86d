// Package services contains server-side business logic. AuthService owns
// registration, credential checks and the lifecycle of access and refresh
// tokens; ScrapeService drives crawls and serves stored content.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/kajix/internal/common"
	"github.com/dmitrijs2005/kajix/internal/logging"
	"github.com/dmitrijs2005/kajix/internal/server/auth"
	"github.com/dmitrijs2005/kajix/internal/server/config"
	"github.com/dmitrijs2005/kajix/internal/server/models"
	"github.com/dmitrijs2005/kajix/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/kajix/internal/server/tokenstore"
)

const (
	MinPasswordLength = 8
	MaxUsernameLength = 50
)

// RegisterInput is the payload of a sign-up request.
type RegisterInput struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ChangePasswordInput is the payload of a password change.
type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       tokenstore.Store
	sender      VerificationSender
	log         logging.Logger

	jwtSecret                         []byte
	accessTokenValidityDuration       time.Duration
	refreshTokenValidityDuration      time.Duration
	emailConfirmationValidityDuration time.Duration
	frontendURL                       string
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, store tokenstore.Store, cfg *config.Config, log logging.Logger) *AuthService {
	log = log.With("module", "auth")
	return &AuthService{
		db:                                db,
		repomanager:                       m,
		store:                             store,
		sender:                            NewLogSender(log),
		log:                               log,
		jwtSecret:                         []byte(cfg.SecretKey),
		accessTokenValidityDuration:       cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration:      cfg.RefreshTokenValidityDuration,
		emailConfirmationValidityDuration: cfg.EmailConfirmationValidityDuration,
		frontendURL:                       strings.TrimRight(cfg.FrontendURL, "/"),
	}
}

// SetVerificationSender replaces the default log-only delivery of
// verification links.
func (s *AuthService) SetVerificationSender(v VerificationSender) {
	s.sender = v
}

// normalizeEmail validates a bare address and lower-cases it; emails are
// unique regardless of case.
func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", common.ErrorBadRequest)
	}
	return strings.ToLower(email), nil
}

func validatePassword(p string) error {
	if len(p) < MinPasswordLength || len(p) > auth.MaxPasswordBytes {
		return fmt.Errorf("%w: password must be %d to %d bytes", common.ErrorBadRequest, MinPasswordLength, auth.MaxPasswordBytes)
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" || len(username) > MaxUsernameLength {
		return nil, fmt.Errorf("%w: username must be 1 to %d characters", common.ErrorBadRequest, MaxUsernameLength)
	}

	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", common.ErrorInternal, err)
	}

	created, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		Email:        email,
		Username:     username,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
	})
	switch {
	case errors.Is(err, common.ErrorConflict):
		return nil, fmt.Errorf("%w: email or username already taken", common.ErrorConflict)
	case err != nil:
		return nil, s.internal(ctx, "create user", err)
	}

	u := created.Public()
	return &u, nil
}

// checkPassword is swapped in tests to observe bcrypt calls.
var checkPassword = auth.CheckPassword

// dummyHash is compared against when no user matches, so an unknown email
// costs the same bcrypt work as a wrong password.
var dummyHash = sync.OnceValue(func() string {
	h, err := auth.HashPassword("kajix-unknown-user")
	if err != nil {
		panic(err)
	}
	return h
})

// ValidateCredentials returns the user owning email if password matches.
// An unknown email and a wrong password are indistinguishable to the caller,
// in the error returned and in the time taken.
func (s *AuthService) ValidateCredentials(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	switch {
	case errors.Is(err, common.ErrorNotFound):
		checkPassword(dummyHash(), password)
		return nil, fmt.Errorf("%w: invalid credentials", common.ErrorUnauthorized)
	case err != nil:
		return nil, s.internal(ctx, "load user", err)
	}

	if !checkPassword(u.PasswordHash, password) {
		return nil, fmt.Errorf("%w: invalid credentials", common.ErrorUnauthorized)
	}

	pub := u.Public()
	return &pub, nil
}

// IssueTokens mints and records a fresh access/refresh pair. Stores that
// support it record both in one transaction; otherwise, if the second record
// cannot be stored, the first one is removed again. Either way a failed call
// leaves no usable token behind.
func (s *AuthService) IssueTokens(ctx context.Context, u *models.User) (*models.TokenPair, error) {
	id := u.Identity()

	access, accessExp, err := auth.GenerateToken(id, models.AccessToken, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, s.internal(ctx, "sign access token", err)
	}
	refresh, refreshExp, err := auth.GenerateToken(id, models.RefreshToken, s.jwtSecret, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, s.internal(ctx, "sign refresh token", err)
	}

	accessRec := tokenstore.Record{Key: tokenstore.Key{Kind: models.AccessToken, UserID: id.UserID, Value: access}, Email: id.Email, ExpiresAt: accessExp}
	refreshRec := tokenstore.Record{Key: tokenstore.Key{Kind: models.RefreshToken, UserID: id.UserID, Value: refresh}, Email: id.Email, ExpiresAt: refreshExp}

	if ap, ok := s.store.(tokenstore.AtomicPutter); ok {
		if err := ap.PutAll(ctx, accessRec, refreshRec); err != nil {
			return nil, s.internal(ctx, "store token pair", err)
		}
		return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
	}

	if err := s.store.Put(ctx, accessRec); err != nil {
		return nil, s.internal(ctx, "store access token", err)
	}
	if err := s.store.Put(ctx, refreshRec); err != nil {
		if delErr := s.store.Delete(ctx, accessRec.Key); delErr != nil {
			s.log.Error(ctx, "rollback of access token failed", "user_id", id.UserID, "error", delErr)
		}
		return nil, s.internal(ctx, "store refresh token", err)
	}

	return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Session, error) {
	u, err := s.ValidateCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	pair, err := s.IssueTokens(ctx, u)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user logged in", "user_id", u.ID)
	return &models.Session{TokenPair: *pair, User: *u}, nil
}

// ValidateAccessToken accepts a token only if it is correctly signed, not
// expired, of the access kind and still VALID in the token store.
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (*models.Identity, error) {
	claims, err := s.parse(token, models.AccessToken)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.Exists(ctx, tokenstore.Key{Kind: models.AccessToken, UserID: claims.Subject, Value: token})
	if err != nil {
		return nil, s.internal(ctx, "look up access token", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: access token is no longer valid", common.ErrorUnauthorized)
	}

	id := claims.Identity()
	return &id, nil
}

// RotateRefreshToken redeems a refresh token for a new pair. The old token
// is marked used before anything is minted, so of two concurrent calls with
// the same token at most one succeeds.
func (s *AuthService) RotateRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	claims, err := s.parse(refreshToken, models.RefreshToken)
	if err != nil {
		return nil, err
	}

	won, err := s.store.MarkUsed(ctx, tokenstore.Key{Kind: models.RefreshToken, UserID: claims.Subject, Value: refreshToken})
	if err != nil {
		return nil, s.internal(ctx, "redeem refresh token", err)
	}
	if !won {
		s.log.Warn(ctx, "refresh token replay rejected", "user_id", claims.Subject)
		return nil, fmt.Errorf("%w: refresh token is no longer valid", common.ErrorUnauthorized)
	}

	u, err := s.repomanager.Users(s.db).GetByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("%w: user no longer exists", common.ErrorUnauthorized)
	case err != nil:
		return nil, s.internal(ctx, "load user", err)
	}

	pub := u.Public()
	pair, err := s.IssueTokens(ctx, &pub)
	if err != nil {
		return nil, err
	}
	return &models.Session{TokenPair: *pair, User: pub}, nil
}

// Logout marks both tokens used. Tokens that are already used, expired or
// unknown are skipped, so repeating the call is harmless. The refresh token
// is required and must belong to the caller.
func (s *AuthService) Logout(ctx context.Context, id models.Identity, accessToken, refreshToken string) error {
	if refreshToken == "" {
		return fmt.Errorf("%w: refresh_token is required", common.ErrorBadRequest)
	}

	claims, err := auth.ParseToken(refreshToken, s.jwtSecret)
	switch {
	case errors.Is(err, common.ErrTokenExpired):
	case err != nil:
		return fmt.Errorf("%w: invalid refresh token", common.ErrorUnauthorized)
	case claims.Subject != id.UserID || claims.Kind != models.RefreshToken:
		return fmt.Errorf("%w: refresh token does not belong to caller", common.ErrorUnauthorized)
	}

	keys := []tokenstore.Key{
		{Kind: models.AccessToken, UserID: id.UserID, Value: accessToken},
		{Kind: models.RefreshToken, UserID: id.UserID, Value: refreshToken},
	}
	for _, k := range keys {
		if _, err := s.store.MarkUsed(ctx, k); err != nil {
			return s.internal(ctx, "mark token used", err)
		}
	}

	s.log.Info(ctx, "user logged out", "user_id", id.UserID)
	return nil
}

// LogoutAll revokes every live token of the user.
func (s *AuthService) LogoutAll(ctx context.Context, id models.Identity) error {
	if err := s.store.RevokeUser(ctx, id.UserID); err != nil {
		return s.internal(ctx, "revoke tokens", err)
	}
	s.log.Info(ctx, "all sessions revoked", "user_id", id.UserID)
	return nil
}

func (s *AuthService) Profile(ctx context.Context, id models.Identity) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, id.UserID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("%w: user not found", common.ErrorNotFound)
	case err != nil:
		return nil, s.internal(ctx, "load user", err)
	}
	pub := u.Public()
	return &pub, nil
}

// ChangePassword replaces the caller's password after checking the current
// one. Every live token of the user is revoked, so all sessions, including
// the calling one, must log in again.
func (s *AuthService) ChangePassword(ctx context.Context, id models.Identity, in ChangePasswordInput) error {
	if err := validatePassword(in.NewPassword); err != nil {
		return err
	}

	repo := s.repomanager.Users(s.db)
	u, err := repo.GetByID(ctx, id.UserID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return fmt.Errorf("%w: user no longer exists", common.ErrorUnauthorized)
	case err != nil:
		return s.internal(ctx, "load user", err)
	}
	if !checkPassword(u.PasswordHash, in.CurrentPassword) {
		return fmt.Errorf("%w: current password is wrong", common.ErrorUnauthorized)
	}

	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return s.internal(ctx, "hash password", err)
	}
	if err := repo.UpdatePassword(ctx, id.UserID, hash); err != nil {
		return s.internal(ctx, "update password", err)
	}
	if err := s.store.RevokeUser(ctx, id.UserID); err != nil {
		return s.internal(ctx, "revoke tokens", err)
	}

	s.log.Info(ctx, "password changed", "user_id", id.UserID)
	return nil
}

func (s *AuthService) parse(token string, kind models.TokenKind) (*auth.Claims, error) {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if errors.Is(err, common.ErrTokenExpired) {
		return nil, fmt.Errorf("%w: token expired", common.ErrorUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", common.ErrorUnauthorized)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: wrong token kind", common.ErrorUnauthorized)
	}
	return claims, nil
}

// internal logs the cause and returns an error that carries no driver detail.
func (s *AuthService) internal(ctx context.Context, op string, err error) error {
	s.log.Error(ctx, op+" failed", "error", err)
	return fmt.Errorf("%w: %s", common.ErrorInternal, op)
}
