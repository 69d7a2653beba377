package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/akinalp/mqvi-gateway/metrics"
	"github.com/akinalp/mqvi-gateway/models"
	"github.com/akinalp/mqvi-gateway/pkg"
	"github.com/akinalp/mqvi-gateway/repository"
)

const tokenIssuer = "mqvi-gateway"

// AuthService, token doğrulama ve session'a bağlı login.
//
// Access token kısa ömürlüdür; "sid" claim'i bir shared-store session'ına
// işaret eder. Logout veya eviction sonrası token imzası geçerli kalsa bile
// ValidateSession başarısız olur.
type AuthService interface {
	Login(ctx context.Context, req *models.LoginRequest, ipAddress string) (*AuthTokens, error)
	Logout(ctx context.Context, sessionID string) error
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	RevokeOtherSessions(ctx context.Context, userID, currentSessionID string) (int, error)
}

// AuthTokens, login sonrası dönen token ve session.
type AuthTokens struct {
	AccessToken string          `json:"access_token"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Session     *models.Session `json:"session"`
	User        models.User     `json:"user"`
}

type authService struct {
	userRepo  repository.UserRepository
	sessions  SessionService
	jwtSecret []byte
	accessExp time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewAuthService, constructor.
func NewAuthService(
	userRepo repository.UserRepository,
	sessions SessionService,
	jwtSecret string,
	accessExp time.Duration,
	logger *slog.Logger,
) AuthService {
	return &authService{
		userRepo:  userRepo,
		sessions:  sessions,
		jwtSecret: []byte(jwtSecret),
		accessExp: accessExp,
		now:       time.Now,
		logger:    logger.With("component", "auth"),
	}
}

// Login, kullanıcıyı doğrular, yeni bir session açar ve ona bağlı token üretir.
// Cap aşılırsa en eski session'lar SessionService tarafından düşürülür.
func (s *authService) Login(ctx context.Context, req *models.LoginRequest, ipAddress string) (*AuthTokens, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			metrics.AuthFailures.WithLabelValues("unknown_user").Inc()
			return nil, fmt.Errorf("%w: invalid username or password", pkg.ErrUnauthorized)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		metrics.AuthFailures.WithLabelValues("bad_password").Inc()
		return nil, fmt.Errorf("%w: invalid username or password", pkg.ErrUnauthorized)
	}

	info := models.SessionInfo{
		Role:       user.Role,
		DeviceInfo: req.DeviceInfo,
		IPAddress:  ipAddress,
	}
	if user.Email != nil {
		info.Email = *user.Email
	}

	sess, err := s.sessions.CreateSession(ctx, user.ID, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	tokens, err := s.generateToken(user, sess)
	if err != nil {
		return nil, err
	}

	metrics.AuthSuccess.Inc()
	s.logger.Info("user logged in", "user_id", user.ID, "session_id", sess.ID)
	return tokens, nil
}

func (s *authService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.DeleteSession(ctx, sessionID)
}

// ValidateAccessToken, JWT access token'ı doğrular ve claims'i döner.
func (s *authService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: invalid token claims", pkg.ErrUnauthorized)
	}
	return claims, nil
}

func (s *authService) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.GetActiveUserSessions(ctx, userID)
}

func (s *authService) RevokeOtherSessions(ctx context.Context, userID, currentSessionID string) (int, error) {
	n, err := s.sessions.DeleteOtherSessions(ctx, userID, currentSessionID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("other sessions revoked", "user_id", userID, "count", n)
	return n, nil
}

// ─── Private Helpers ───

func (s *authService) generateToken(user *models.User, sess *models.Session) (*AuthTokens, error) {
	now := s.now()
	expiresAt := now.Add(s.accessExp)

	claims := &models.TokenClaims{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     sess.Email,
		Role:      user.Role,
		SessionID: sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   user.ID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	user.PasswordHash = ""
	return &AuthTokens{
		AccessToken: signed,
		ExpiresAt:   expiresAt,
		Session:     sess,
		User:        *user,
	}, nil
}
