package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/fitauth/internal/metrics"
	"github.com/hitoshi/fitauth/internal/model"
)

// subjectClaims はsubjectとして認めるクレーム名。先に一致したものを採用する。
var subjectClaims = []string{"sub", "user_id"}

// TokenVerifier はBearerトークンを共有シークレットで検証し、プロフィールを解決する。
type TokenVerifier struct {
	secret   []byte
	method   string
	profiles ProfileFinder
	metrics  metrics.MetricsCollector
}

// NewTokenVerifier はTokenVerifierを生成する。
// algorithmはHS256/HS384/HS512のいずれか。空の場合はHS256。
func NewTokenVerifier(secret, algorithm string, profiles ProfileFinder, collector metrics.MetricsCollector) (*TokenVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if algorithm == "" {
		algorithm = jwt.SigningMethodHS256.Alg()
	}
	if _, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported token algorithm: %s", algorithm)
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &TokenVerifier{
		secret:   []byte(secret),
		method:   algorithm,
		profiles: profiles,
		metrics:  collector,
	}, nil
}

// Verify はトークンを検証し、subjectに対応するプロフィールを返す。副作用はない。
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*model.Profile, error) {
	profile, err := v.verify(ctx, token)
	v.metrics.RecordTokenVerification(verificationOutcome(err))
	return profile, err
}

func (v *TokenVerifier) verify(ctx context.Context, token string) (*model.Profile, error) {
	subject, err := v.Subject(token)
	if err != nil {
		return nil, err
	}

	profile, err := v.profiles.FindByID(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", ensureKind(err, model.ErrStorage))
	}
	if profile == nil {
		return nil, fmt.Errorf("subject %s: %w", subject, model.ErrMissingProfile)
	}
	return profile, nil
}

// Subject は署名と有効期限を検証し、subjectを返す。
func (v *TokenVerifier) Subject(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("empty token: %w", model.ErrInvalidToken)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{v.method}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w: %w", model.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("token is not valid: %w", model.ErrInvalidToken)
	}

	subject := ""
	for _, name := range subjectClaims {
		if s, ok := claims[name].(string); ok && strings.TrimSpace(s) != "" {
			subject = s
			break
		}
	}
	if subject == "" {
		return "", model.ErrMissingClaim
	}
	if _, err := uuid.Parse(subject); err != nil {
		return "", fmt.Errorf("malformed subject %q: %w", subject, model.ErrInvalidToken)
	}

	return subject, nil
}

func verificationOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, model.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, model.ErrMissingClaim):
		return "missing_claim"
	case errors.Is(err, model.ErrMissingProfile):
		return "missing_profile"
	default:
		return "storage_error"
	}
}
