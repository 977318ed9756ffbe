package auth

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hitoshi/fitauth/internal/database"
	"github.com/hitoshi/fitauth/internal/model"
	"github.com/hitoshi/fitauth/internal/repository"
)

// newFlowStore はマイグレーション済みのSQLiteストアを用意する。
func newFlowStore(t *testing.T) (*repository.SQLiteProfileRepo, *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "flow.db")
	if err := database.RunSQLiteMigrations(path); err != nil {
		t.Fatalf("RunSQLiteMigrations() error = %v", err)
	}
	db, err := database.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.NewSQLiteProfileRepo(db), db
}

func countTable(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT count(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s error = %v", table, err)
	}
	return n
}

func TestFlow_RegisterClientThenLogin(t *testing.T) {
	repo, db := newFlowStore(t)
	provider := newFakeProvider(testSecret)
	logger := newTestLogger(&bytes.Buffer{})
	ctx := context.Background()

	provisioner := NewProvisioner(provider, repo, stubHasher{}, logger, nil)
	issuer := NewSessionIssuer(provider, repo, logger, nil)
	verifier := newTestVerifier(t, repo)

	reg, err := provisioner.Register(ctx, model.RegisterInput{
		Name:       "Carla Client",
		Email:      "carla@example.com",
		Password:   "s3cret-pass",
		Role:       model.RoleClient,
		RoleFields: model.ClientFields{FitnessGoal: "lose weight"},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if reg.Profile.Active {
		t.Error("new profile should be inactive")
	}
	if reg.Profile.Role != model.RoleClient {
		t.Errorf("expected role client, got %s", reg.Profile.Role)
	}
	if reg.Session == nil || reg.Session.AccessToken == "" {
		t.Fatal("expected session with access token")
	}
	if got := countTable(t, db, "clients"); got != 1 {
		t.Errorf("expected 1 client row, got %d", got)
	}
	if got := countTable(t, db, "trainers"); got != 0 {
		t.Errorf("expected 0 trainer rows, got %d", got)
	}

	fields, err := repo.FindRoleProfile(ctx, reg.Profile.ID)
	if err != nil {
		t.Fatalf("FindRoleProfile() error = %v", err)
	}
	if c, ok := fields.(model.ClientFields); !ok || c.FitnessGoal != "lose weight" {
		t.Errorf("unexpected role fields: %#v", fields)
	}

	// 登録時のトークンのsubjectはプロフィールIDと一致する
	subject, err := verifier.Subject(reg.Session.AccessToken)
	if err != nil {
		t.Fatalf("Subject() error = %v", err)
	}
	if subject != reg.Profile.ID {
		t.Errorf("expected subject %s, got %s", reg.Profile.ID, subject)
	}

	login, err := issuer.Login(ctx, "carla@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.Profile.ID != reg.Profile.ID {
		t.Errorf("expected login profile %s, got %s", reg.Profile.ID, login.Profile.ID)
	}
	verified, err := verifier.Verify(ctx, login.Session.AccessToken)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if verified.ID != reg.Profile.ID {
		t.Errorf("expected verified profile %s, got %s", reg.Profile.ID, verified.ID)
	}
}

func TestFlow_LoginWithWrongPasswordWritesNothing(t *testing.T) {
	repo, db := newFlowStore(t)
	provider := newFakeProvider(testSecret)
	logger := newTestLogger(&bytes.Buffer{})
	ctx := context.Background()

	provisioner := NewProvisioner(provider, repo, stubHasher{}, logger, nil)
	if _, err := provisioner.Register(ctx, model.RegisterInput{
		Email:    "noel@example.com",
		Password: "s3cret-pass",
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	before := countTable(t, db, "profiles")

	issuer := NewSessionIssuer(provider, repo, logger, nil)
	_, err := issuer.Login(ctx, "noel@example.com", "wrong-pass")
	if !errors.Is(err, model.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if after := countTable(t, db, "profiles"); after != before {
		t.Errorf("expected %d profiles after failed login, got %d", before, after)
	}
}

func TestFlow_SequentialDuplicateRegistration(t *testing.T) {
	repo, db := newFlowStore(t)
	provider := newFakeProvider(testSecret)
	provisioner := NewProvisioner(provider, repo, stubHasher{}, newTestLogger(&bytes.Buffer{}), nil)
	ctx := context.Background()

	in := model.RegisterInput{Email: "dup@example.com", Password: "s3cret-pass"}
	if _, err := provisioner.Register(ctx, in); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	_, err := provisioner.Register(ctx, in)
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := len(provider.createdIDs()); got != 1 {
		t.Errorf("expected 1 identity at provider, got %d", got)
	}
	if got := countTable(t, db, "profiles"); got != 1 {
		t.Errorf("expected 1 profile, got %d", got)
	}
}

func TestFlow_ConcurrentDuplicateRegistration(t *testing.T) {
	repo, db := newFlowStore(t)
	provider := newFakeProvider(testSecret)

	// 両方の登録が事前確認を通過してからIdentityを作成させる
	var arrived sync.WaitGroup
	arrived.Add(2)
	provider.beforeCreate = func() {
		arrived.Done()
		arrived.Wait()
	}

	provisioner := NewProvisioner(provider, repo, stubHasher{}, newTestLogger(&bytes.Buffer{}), nil)

	in := model.RegisterInput{Email: "race@example.com", Password: "s3cret-pass"}
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = provisioner.Register(context.Background(), in)
		}(i)
	}
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, model.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicts != 1 {
		t.Errorf("expected 1 success and 1 conflict, got %d and %d", succeeded, conflicts)
	}
	if got := countTable(t, db, "profiles"); got != 1 {
		t.Errorf("expected exactly 1 profile, got %d", got)
	}
	// 敗者のIdentityはIdP上に残る
	if got := len(provider.createdIDs()); got != 2 {
		t.Errorf("expected 2 identities at provider, got %d", got)
	}
}
