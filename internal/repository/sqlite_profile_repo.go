package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hitoshi/fitauth/internal/model"
)

const sqliteProfileColumns = `id, full_name, email, password, phone, role, onboarded`

// SQLiteProfileRepo はSQLiteを使用したプロフィールリポジトリ。
// ローカル開発と結合テストで使用する。
type SQLiteProfileRepo struct {
	db *sql.DB
}

// NewSQLiteProfileRepo はSQLiteProfileRepoを生成する。
func NewSQLiteProfileRepo(db *sql.DB) *SQLiteProfileRepo {
	return &SQLiteProfileRepo{db: db}
}

// FindByEmail は指定メールアドレスのプロフィールを取得する。見つからない場合はnilを返す。
func (r *SQLiteProfileRepo) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return r.findOne(ctx, "find profile by email",
		`SELECT `+sqliteProfileColumns+` FROM profiles WHERE email = ?`, email)
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *SQLiteProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.findOne(ctx, "find profile by ID",
		`SELECT `+sqliteProfileColumns+` FROM profiles WHERE id = ?`, id)
}

func (r *SQLiteProfileRepo) findOne(ctx context.Context, op, query string, arg any) (*model.Profile, error) {
	var row profileRow
	err := r.db.QueryRowContext(ctx, query, arg).Scan(row.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, sqliteError(op, err)
	}
	return row.toModel(), nil
}

// CreateWithRole はプロフィールとロール別レコードを同一トランザクションで作成する。
// 資格リストはJSON配列として保存する。
func (r *SQLiteProfileRepo) CreateWithRole(ctx context.Context, p model.NewProfile) (*model.Profile, error) {
	p, err := prepareNewProfile(p)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, sqliteError("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, full_name, email, password, phone, role, onboarded)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		p.ID, nullString(p.Name), p.Email, nullString(p.PasswordHash), nullString(p.Phone), roleColumn(p.Role),
	)
	if err != nil {
		return nil, sqliteError("insert profile", err)
	}

	switch f := p.RoleFields.(type) {
	case model.TrainerFields:
		certs, err := json.Marshal(f.Certifications)
		if err != nil {
			return nil, fmt.Errorf("failed to encode certifications: %w: %w", model.ErrStorage, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO trainers (id, bio, certifications, years_exp, org_id)
			 VALUES (?, ?, ?, ?, ?)`,
			p.ID, nullString(f.Bio), string(certs), f.YearsExp, nullString(f.OrganizationRef),
		)
		if err != nil {
			return nil, sqliteError("insert trainer", err)
		}
	case model.ClientFields:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO clients (id, fitness_goal) VALUES (?, ?)`,
			p.ID, nullString(f.FitnessGoal),
		)
		if err != nil {
			return nil, sqliteError("insert client", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, sqliteError("commit transaction", err)
	}

	return committedProfile(p), nil
}

// FindRoleProfile は指定IDのロール別レコードを取得する。
func (r *SQLiteProfileRepo) FindRoleProfile(ctx context.Context, id string) (model.RoleFields, error) {
	var (
		role        sql.NullString
		bio         sql.NullString
		certs       sql.NullString
		yearsExp    sql.NullInt64
		orgID       sql.NullString
		fitnessGoal sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT p.role, t.bio, t.certifications, t.years_exp, t.org_id, c.fitness_goal
		 FROM profiles p
		 LEFT JOIN trainers t ON t.id = p.id
		 LEFT JOIN clients c ON c.id = p.id
		 WHERE p.id = ?`,
		id,
	).Scan(&role, &bio, &certs, &yearsExp, &orgID, &fitnessGoal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, sqliteError("find role profile", err)
	}

	switch model.Role(role.String) {
	case model.RoleTrainer:
		var list []string
		if certs.Valid && certs.String != "" {
			if err := json.Unmarshal([]byte(certs.String), &list); err != nil {
				return nil, fmt.Errorf("failed to decode certifications: %w: %w", model.ErrStorage, err)
			}
		}
		return model.TrainerFields{
			Bio:             bio.String,
			Certifications:  model.NormalizeCertifications(list),
			YearsExp:        int(yearsExp.Int64),
			OrganizationRef: orgID.String,
		}, nil
	case model.RoleClient:
		return model.ClientFields{FitnessGoal: fitnessGoal.String}, nil
	default:
		return nil, nil
	}
}

// DeleteByID はロール別レコードとプロフィールを同一トランザクションで削除する。
// プロフィールが存在しない場合はmodel.ErrMissingProfileを返す。
func (r *SQLiteProfileRepo) DeleteByID(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return sqliteError("begin transaction", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM trainers WHERE id = ?`,
		`DELETE FROM clients WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return sqliteError("delete role profile", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return sqliteError("delete profile", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return sqliteError("get rows affected", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile %s: %w", id, model.ErrMissingProfile)
	}

	if err := tx.Commit(); err != nil {
		return sqliteError("commit transaction", err)
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqliteErr.Error(), "UNIQUE")
	}
	return false
}

// sqliteError はドライバエラーをドメインエラーに分類してラップする。
func sqliteError(op string, err error) error {
	if isSQLiteUniqueViolation(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, model.ErrIntegrityViolation, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, model.ErrStorage, err)
}

// compile-time interface check
var _ ProfileRepository = (*SQLiteProfileRepo)(nil)
