package repository

import (
	"database/sql"
	"fmt"

	"github.com/hitoshi/fitauth/internal/model"
)

// profileRow はprofilesテーブルの1行をスキャンするための中間表現。
type profileRow struct {
	id        string
	fullName  sql.NullString
	email     string
	password  sql.NullString
	phone     sql.NullString
	role      sql.NullString
	onboarded bool
}

func (r *profileRow) dest() []any {
	return []any{&r.id, &r.fullName, &r.email, &r.password, &r.phone, &r.role, &r.onboarded}
}

func (r *profileRow) toModel() *model.Profile {
	role := model.RoleNone
	if r.role.Valid && r.role.String != "" {
		role = model.Role(r.role.String)
	}
	return &model.Profile{
		ID:           r.id,
		Name:         r.fullName.String,
		Email:        r.email,
		PasswordHash: r.password.String,
		Phone:        r.phone.String,
		Role:         role,
		Active:       r.onboarded,
	}
}

// roleColumn はRoleNoneをNULLとして保存する。
func roleColumn(role model.Role) sql.NullString {
	if role == model.RoleNone || role == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(role), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// prepareNewProfile はロールとロール別フィールドの整合性を検証し、
// 資格リストと経験年数を正規化する。
func prepareNewProfile(p model.NewProfile) (model.NewProfile, error) {
	if p.Role == "" {
		p.Role = model.RoleNone
	}
	fields, err := model.ResolveRoleFields(p.Role, p.RoleFields)
	if err != nil {
		return p, fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	if tf, ok := fields.(model.TrainerFields); ok {
		tf.Certifications = model.NormalizeCertifications(tf.Certifications)
		tf.YearsExp = model.NormalizeYearsExp(tf.YearsExp)
		fields = tf
	}
	p.RoleFields = fields
	return p, nil
}

func committedProfile(p model.NewProfile) *model.Profile {
	return &model.Profile{
		ID:           p.ID,
		Name:         p.Name,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		Phone:        p.Phone,
		Role:         p.Role,
		Active:       false,
	}
}
