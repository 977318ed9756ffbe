// Package idp は外部のホスト型認証基盤（IdP）との連携機能を提供する。
// 管理者APIによるIdentity作成とパスワードグラントによるログインを含む。
package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fitauth/internal/metrics"
	"github.com/hitoshi/fitauth/internal/model"
)

const (
	adminUsersPath = "/auth/v1/admin/users"
	tokenPath      = "/auth/v1/token?grant_type=password"

	// defaultAdminTimeout はIdentity作成のタイムアウト。
	defaultAdminTimeout = 20 * time.Second
	// defaultLoginTimeout はパスワードログインのタイムアウト。
	defaultLoginTimeout = 10 * time.Second

	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 1 << 20
	// maxLoggedBodyBytes はログに記録するレスポンスボディの上限。
	maxLoggedBodyBytes = 512
)

// Config はIdPクライアントの設定。
type Config struct {
	BaseURL        string
	ServiceRoleKey string
	AnonKey        string
	AdminTimeout   time.Duration
	LoginTimeout   time.Duration
}

// Client はIdPのHTTPクライアント。状態を持たず、並行利用できる。
// 自動リトライは行わない。
type Client struct {
	httpClient     *http.Client
	logger         *slog.Logger
	metrics        metrics.MetricsCollector
	baseURL        string
	serviceRoleKey string
	anonKey        string
	adminTimeout   time.Duration
	loginTimeout   time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, collector metrics.MetricsCollector, cfg Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	c := &Client{
		httpClient:     httpClient,
		logger:         logger,
		metrics:        collector,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		serviceRoleKey: cfg.ServiceRoleKey,
		anonKey:        cfg.AnonKey,
		adminTimeout:   cfg.AdminTimeout,
		loginTimeout:   cfg.LoginTimeout,
	}
	if c.adminTimeout <= 0 {
		c.adminTimeout = defaultAdminTimeout
	}
	if c.loginTimeout <= 0 {
		c.loginTimeout = defaultLoginTimeout
	}
	return c
}

// ProviderError はIdPの想定外レスポンスまたは通信失敗を表す。
// Bodyはログ用であり、Error()には含めない。
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("identity provider %s: unexpected status %d", e.Op, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("identity provider %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("identity provider %s failed", e.Op)
}

// Unwrap はmodel.ErrIdentityProviderと原因エラーを返す。
func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{model.ErrIdentityProvider}
	}
	return []error{model.ErrIdentityProvider, e.Err}
}

type createIdentityRequest struct {
	Email        string       `json:"email"`
	Password     string       `json:"password"`
	EmailConfirm bool         `json:"email_confirm"`
	UserMetadata userMetadata `json:"user_metadata"`
}

type userMetadata struct {
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role,omitempty"`
}

type identityObject struct {
	ID string `json:"id"`
}

// createIdentityResponse はIDがuserオブジェクト配下にある形式とトップレベルにある形式の両方を受け付ける。
type createIdentityResponse struct {
	ID   string          `json:"id"`
	User *identityObject `json:"user"`
}

func (r createIdentityResponse) identityID() string {
	if r.User != nil && r.User.ID != "" {
		return r.User.ID
	}
	return r.ID
}

type passwordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordLoginResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	User         *identityObject `json:"user"`
}

// CreateIdentity は管理者APIでメール確認済みのIdentityを作成し、identity_idを返す。
// 200/201以外のステータスはProviderErrorとして返す。
func (c *Client) CreateIdentity(ctx context.Context, email, password string, meta model.Metadata) (string, error) {
	const op = "create_identity"

	role := ""
	if meta.Role != model.RoleNone {
		role = string(meta.Role)
	}
	payload, err := json.Marshal(createIdentityRequest{
		Email:        email,
		Password:     password,
		EmailConfirm: true,
		UserMetadata: userMetadata{FullName: meta.FullName, Phone: meta.Phone, Role: role},
	})
	if err != nil {
		return "", &ProviderError{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.adminTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+adminUsersPath, bytes.NewReader(payload))
	if err != nil {
		return "", &ProviderError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
	req.Header.Set("apikey", c.serviceRoleKey)

	status, body, err := c.do(req, op)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		c.logger.Error("identity provider returned error status",
			slog.String("op", op),
			slog.Int("http_status", status),
			slog.String("body", truncate(body)),
		)
		c.metrics.RecordIdPRequest(op, "error")
		return "", &ProviderError{Op: op, StatusCode: status, Body: string(body)}
	}

	var resp createIdentityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", c.decodeFailure(op, fmt.Errorf("failed to parse response: %w", err))
	}
	id := resp.identityID()
	if _, err := uuid.Parse(id); err != nil {
		return "", c.decodeFailure(op, fmt.Errorf("malformed identity id %q: %w", id, err))
	}

	c.metrics.RecordIdPRequest(op, "success")
	c.logger.Info("identity created", slog.String("identity_id", id))
	return id, nil
}

// PasswordLogin はパスワードグラントでログインし、セッションとidentity_idを返す。
// 認証失敗系のステータスはmodel.ErrInvalidCredentials、それ以外の失敗はProviderErrorとして返す。
func (c *Client) PasswordLogin(ctx context.Context, email, password string) (*model.Session, string, error) {
	const op = "password_login"

	payload, err := json.Marshal(passwordLoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, "", &ProviderError{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.loginTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, bytes.NewReader(payload))
	if err != nil {
		return nil, "", &ProviderError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	status, body, err := c.do(req, op)
	if err != nil {
		return nil, "", err
	}

	switch {
	case status == http.StatusOK:
	case isAuthFailureStatus(status):
		c.logger.Info("identity provider rejected password grant",
			slog.Int("http_status", status),
		)
		c.metrics.RecordIdPRequest(op, "invalid_credentials")
		return nil, "", fmt.Errorf("identity provider %s: %w", op, model.ErrInvalidCredentials)
	default:
		c.logger.Error("identity provider returned error status",
			slog.String("op", op),
			slog.Int("http_status", status),
			slog.String("body", truncate(body)),
		)
		c.metrics.RecordIdPRequest(op, "error")
		return nil, "", &ProviderError{Op: op, StatusCode: status, Body: string(body)}
	}

	var resp passwordLoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", c.decodeFailure(op, fmt.Errorf("failed to parse response: %w", err))
	}
	if resp.AccessToken == "" {
		return nil, "", c.decodeFailure(op, errors.New("access_token missing from response"))
	}
	if resp.User == nil || resp.User.ID == "" {
		return nil, "", c.decodeFailure(op, errors.New("user.id missing from response"))
	}
	if _, err := uuid.Parse(resp.User.ID); err != nil {
		return nil, "", c.decodeFailure(op, fmt.Errorf("malformed identity id %q: %w", resp.User.ID, err))
	}

	c.metrics.RecordIdPRequest(op, "success")
	return &model.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    model.TokenTypeBearer,
	}, resp.User.ID, nil
}

// do はリクエストを1回だけ送信し、ステータスとボディを返す。
// タイムアウト・キャンセルを含む通信エラーはProviderErrorとして返す。
func (c *Client) do(req *http.Request, op string) (int, []byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordIdPLatency(op, time.Since(start))
	if err != nil {
		c.logger.Error("identity provider request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordIdPRequest(op, "error")
		return 0, nil, &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Error("failed to read identity provider response",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordIdPRequest(op, "error")
		return 0, nil, &ProviderError{Op: op, Err: err}
	}
	return resp.StatusCode, body, nil
}

func (c *Client) decodeFailure(op string, err error) error {
	c.logger.Error("unexpected identity provider response",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	c.metrics.RecordIdPRequest(op, "error")
	return &ProviderError{Op: op, Err: err}
}

func isAuthFailureStatus(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBodyBytes {
		return string(body[:maxLoggedBodyBytes]) + "..."
	}
	return string(body)
}
