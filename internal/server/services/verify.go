package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/kajix/internal/common"
	"github.com/dmitrijs2005/kajix/internal/logging"
	"github.com/dmitrijs2005/kajix/internal/server/auth"
	"github.com/dmitrijs2005/kajix/internal/server/models"
	"github.com/dmitrijs2005/kajix/internal/server/tokenstore"
)

// VerificationSender delivers an email confirmation link to its owner.
type VerificationSender interface {
	SendVerification(ctx context.Context, email, link string) error
}

// LogSender writes verification links to the log instead of mailing them.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (l *LogSender) SendVerification(ctx context.Context, email, link string) error {
	l.log.Info(ctx, "email verification requested", "email", email, "verification_link", link)
	return nil
}

// RequestEmailVerification issues a single-use confirmation token for the
// caller's address and hands the link to the sender. Earlier links stay
// valid until they expire or one of them is redeemed.
func (s *AuthService) RequestEmailVerification(ctx context.Context, id models.Identity) error {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, id.UserID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return fmt.Errorf("%w: user no longer exists", common.ErrorUnauthorized)
	case err != nil:
		return s.internal(ctx, "load user", err)
	}
	if u.EmailVerifiedAt != nil {
		return fmt.Errorf("%w: email already verified", common.ErrorConflict)
	}

	owner := u.Identity()
	token, exp, err := auth.GenerateToken(owner, models.EmailConfirmationToken, s.jwtSecret, s.emailConfirmationValidityDuration)
	if err != nil {
		return s.internal(ctx, "sign confirmation token", err)
	}

	key := tokenstore.Key{Kind: models.EmailConfirmationToken, UserID: owner.UserID, Value: token}
	if err := s.store.Put(ctx, tokenstore.Record{Key: key, Email: owner.Email, ExpiresAt: exp}); err != nil {
		return s.internal(ctx, "store confirmation token", err)
	}

	if err := s.sender.SendVerification(ctx, owner.Email, s.frontendURL+"/verify/"+token); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.log.Error(ctx, "rollback of confirmation token failed", "user_id", owner.UserID, "error", delErr)
		}
		return s.internal(ctx, "send verification", err)
	}
	return nil
}

// ConfirmEmail redeems a confirmation token. Invalid, expired and already
// used tokens are all a bad request; the token is spent before the user is
// updated, so it cannot be redeemed twice.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", common.ErrorBadRequest)
	}

	claims, err := auth.ParseToken(token, s.jwtSecret)
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return nil, fmt.Errorf("%w: token expired", common.ErrorBadRequest)
	case err != nil, claims.Kind != models.EmailConfirmationToken:
		return nil, fmt.Errorf("%w: invalid token", common.ErrorBadRequest)
	}

	won, err := s.store.MarkUsed(ctx, tokenstore.Key{Kind: models.EmailConfirmationToken, UserID: claims.Subject, Value: token})
	if err != nil {
		return nil, s.internal(ctx, "redeem confirmation token", err)
	}
	if !won {
		return nil, fmt.Errorf("%w: token is no longer valid", common.ErrorBadRequest)
	}

	repo := s.repomanager.Users(s.db)
	if err := repo.MarkEmailVerified(ctx, claims.Subject); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", common.ErrorNotFound)
		}
		return nil, s.internal(ctx, "mark email verified", err)
	}
	u, err := repo.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, s.internal(ctx, "load user", err)
	}

	s.log.Info(ctx, "email verified", "user_id", claims.Subject)
	pub := u.Public()
	return &pub, nil
}
