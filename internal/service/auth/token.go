// Package auth issues and validates access tokens for trip participants.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Temutjin2k/ride-tracking-system/internal/domain/models"
	"github.com/Temutjin2k/ride-tracking-system/internal/domain/types"
	"github.com/Temutjin2k/ride-tracking-system/pkg/logger"
	wrap "github.com/Temutjin2k/ride-tracking-system/pkg/logger/wrapper"
)

const accessTokenType = "access"

type TokenService struct {
	AccessTTL time.Duration
	secret    string
	log       logger.Logger

	now func() time.Time
}

func NewTokenService(secret string, accessTTL time.Duration, log logger.Logger) (*TokenService, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &TokenService{
		AccessTTL: accessTTL,
		secret:    secret,
		log:       log,
		now:       time.Now,
	}, nil
}

// Issue signs an access token for user.
func (s *TokenService) Issue(ctx context.Context, user *models.User) (string, time.Time, error) {
	ctx = wrap.WithAction(ctx, "issue_token")
	if user.IsAnonymous() {
		return "", time.Time{}, wrap.Error(ctx, errors.New("user is empty"))
	}

	issuedAt := s.now().UTC()
	exp := issuedAt.Add(s.AccessTTL)

	claims := jwt.MapClaims{
		"typ":     accessTokenType,
		"jti":     uuid.NewString(),
		"user_id": user.ID.String(),
		"role":    user.Role.String(),
		"iat":     issuedAt.Unix(),
		"exp":     exp.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secret))
	if err != nil {
		return "", time.Time{}, wrap.Error(ctx, fmt.Errorf("%w: %w", ErrTokenGenerateFail, err))
	}
	return token, exp, nil
}

// Validate validates the given JWT and returns the user it was issued for.
func (s *TokenService) Validate(ctx context.Context, token string) (*models.User, error) {
	ctx = wrap.WithAction(ctx, "validate_token")

	parsedToken, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return []byte(s.secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, wrap.Error(ctx, ErrExpToken)
		}
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}
	if !parsedToken.Valid {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}

	mc, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}

	if typ, _ := mc["typ"].(string); typ != accessTokenType {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}

	userIDStr, _ := mc["user_id"].(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil || userID == uuid.Nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%w: invalid 'user_id' in token claims", ErrInvalidToken))
	}

	role := types.UserRole(fmt.Sprint(mc["role"]))
	switch role {
	case types.RoleRequester, types.RoleFulfiller, types.RoleAdmin:
	default:
		return nil, wrap.Error(ctx, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role))
	}

	return &models.User{ID: userID, Role: role}, nil
}
