package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/fitauth/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反を表すSQLSTATE。
const pgUniqueViolation = "23505"

const pgProfileColumns = `id, full_name, email, password, phone, role, onboarded`

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByEmail は指定メールアドレスのプロフィールを取得する。見つからない場合はnilを返す。
// メールアドレスは保存された値と大文字小文字を区別して比較する。
func (r *PostgresProfileRepo) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return r.findOne(ctx, "find profile by email",
		`SELECT `+pgProfileColumns+` FROM profiles WHERE email = $1`, email)
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.findOne(ctx, "find profile by ID",
		`SELECT `+pgProfileColumns+` FROM profiles WHERE id = $1`, id)
}

func (r *PostgresProfileRepo) findOne(ctx context.Context, op, query string, arg any) (*model.Profile, error) {
	var row profileRow
	err := r.db.QueryRowContext(ctx, query, arg).Scan(row.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pgError(op, err)
	}
	return row.toModel(), nil
}

// CreateWithRole はプロフィールとロール別レコードを同一トランザクションで作成する。
func (r *PostgresProfileRepo) CreateWithRole(ctx context.Context, p model.NewProfile) (*model.Profile, error) {
	p, err := prepareNewProfile(p)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, pgError("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, full_name, email, password, phone, role, onboarded)
		 VALUES ($1, $2, $3, $4, $5, $6, false)`,
		p.ID, nullString(p.Name), p.Email, nullString(p.PasswordHash), nullString(p.Phone), roleColumn(p.Role),
	)
	if err != nil {
		return nil, pgError("insert profile", err)
	}

	switch f := p.RoleFields.(type) {
	case model.TrainerFields:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO trainers (id, bio, certifications, years_exp, org_id)
			 VALUES ($1, $2, $3, $4, $5)`,
			p.ID, nullString(f.Bio), pq.Array(f.Certifications), f.YearsExp, nullString(f.OrganizationRef),
		)
		if err != nil {
			return nil, pgError("insert trainer", err)
		}
	case model.ClientFields:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO clients (id, fitness_goal) VALUES ($1, $2)`,
			p.ID, nullString(f.FitnessGoal),
		)
		if err != nil {
			return nil, pgError("insert client", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, pgError("commit transaction", err)
	}

	return committedProfile(p), nil
}

// FindRoleProfile は指定IDのロール別レコードを取得する。
func (r *PostgresProfileRepo) FindRoleProfile(ctx context.Context, id string) (model.RoleFields, error) {
	var (
		role        sql.NullString
		bio         sql.NullString
		certs       []string
		yearsExp    sql.NullInt64
		orgID       sql.NullString
		fitnessGoal sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT p.role, t.bio, t.certifications, t.years_exp, t.org_id, c.fitness_goal
		 FROM profiles p
		 LEFT JOIN trainers t ON t.id = p.id
		 LEFT JOIN clients c ON c.id = p.id
		 WHERE p.id = $1`,
		id,
	).Scan(&role, &bio, pq.Array(&certs), &yearsExp, &orgID, &fitnessGoal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pgError("find role profile", err)
	}

	switch model.Role(role.String) {
	case model.RoleTrainer:
		return model.TrainerFields{
			Bio:             bio.String,
			Certifications:  model.NormalizeCertifications(certs),
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
func (r *PostgresProfileRepo) DeleteByID(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pgError("begin transaction", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM trainers WHERE id = $1`,
		`DELETE FROM clients WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return pgError("delete role profile", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return pgError("delete profile", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return pgError("get rows affected", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile %s: %w", id, model.ErrMissingProfile)
	}

	if err := tx.Commit(); err != nil {
		return pgError("commit transaction", err)
	}
	return nil
}

// pgError はドライバエラーをドメインエラーに分類してラップする。
func pgError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return fmt.Errorf("failed to %s: %w: %w", op, model.ErrIntegrityViolation, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, model.ErrStorage, err)
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
