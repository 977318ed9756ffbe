package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/fitauth/internal/model"
)

// --- モック定義 ---

type mockIdP struct {
	createIdentityFn func(ctx context.Context, email, password string, meta model.Metadata) (string, error)
	passwordLoginFn  func(ctx context.Context, email, password string) (*model.Session, string, error)
}

func (m *mockIdP) CreateIdentity(ctx context.Context, email, password string, meta model.Metadata) (string, error) {
	if m.createIdentityFn != nil {
		return m.createIdentityFn(ctx, email, password, meta)
	}
	return "", errors.New("createIdentityFn not set")
}

func (m *mockIdP) PasswordLogin(ctx context.Context, email, password string) (*model.Session, string, error) {
	if m.passwordLoginFn != nil {
		return m.passwordLoginFn(ctx, email, password)
	}
	return nil, "", errors.New("passwordLoginFn not set")
}

type mockProfileRepo struct {
	findByEmailFn     func(ctx context.Context, email string) (*model.Profile, error)
	findByIDFn        func(ctx context.Context, id string) (*model.Profile, error)
	createWithRoleFn  func(ctx context.Context, p model.NewProfile) (*model.Profile, error)
	findRoleProfileFn func(ctx context.Context, id string) (model.RoleFields, error)
	deleteByIDFn      func(ctx context.Context, id string) error
}

func (m *mockProfileRepo) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockProfileRepo) CreateWithRole(ctx context.Context, p model.NewProfile) (*model.Profile, error) {
	if m.createWithRoleFn != nil {
		return m.createWithRoleFn(ctx, p)
	}
	return &model.Profile{ID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone, Role: p.Role}, nil
}

func (m *mockProfileRepo) FindRoleProfile(ctx context.Context, id string) (model.RoleFields, error) {
	if m.findRoleProfileFn != nil {
		return m.findRoleProfileFn(ctx, id)
	}
	return nil, nil
}

func (m *mockProfileRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type stubHasher struct {
	err error
}

func (h stubHasher) Hash(password string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "hashed:" + password, nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

const testSecret = "test-jwt-secret-with-enough-entropy"

// signToken はテスト用にHMACトークンを発行する。
func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

// fakeProvider はメモリ上でIdentityを保持するIdP。
// 作成済みIdentityを後から確認でき、ログイン時は共有シークレットで署名したトークンを返す。
type fakeProvider struct {
	mu         sync.Mutex
	identities map[string]fakeIdentity // email -> identity
	created    []string
	secret     string
	// beforeCreate は作成前に呼ばれるフック。並行登録の同期に使う。
	beforeCreate func()
}

type fakeIdentity struct {
	id       string
	password string
}

func newFakeProvider(secret string) *fakeProvider {
	return &fakeProvider{identities: make(map[string]fakeIdentity), secret: secret}
}

// CreateIdentity は重複排除を行わず、呼ばれるたびに新しいIdentityを作成する。
func (f *fakeProvider) CreateIdentity(ctx context.Context, email, password string, meta model.Metadata) (string, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.NewString()
	f.identities[email] = fakeIdentity{id: id, password: password}
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeProvider) PasswordLogin(ctx context.Context, email, password string) (*model.Session, string, error) {
	f.mu.Lock()
	ident, ok := f.identities[email]
	f.mu.Unlock()
	if !ok || ident.password != password {
		return nil, "", fmt.Errorf("fake provider: %w", model.ErrInvalidCredentials)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": ident.id,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(f.secret))
	if err != nil {
		return nil, "", err
	}
	return &model.Session{AccessToken: token, RefreshToken: "refresh-" + ident.id, TokenType: model.TokenTypeBearer}, ident.id, nil
}

func (f *fakeProvider) createdIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}
