// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Role はプロフィールに付与されるロールを表す。
type Role string

const (
	// RoleNone はロール未指定を表す。ロール別レコードは作成されない。
	RoleNone Role = "none"
	// RoleTrainer はトレーナーを表す。
	RoleTrainer Role = "trainer"
	// RoleClient はクライアントを表す。
	RoleClient Role = "client"
)

// ParseRole は文字列からRoleを解析する。空文字はRoleNoneとして扱う。
func ParseRole(s string) (Role, error) {
	switch strings.TrimSpace(s) {
	case "", string(RoleNone):
		return RoleNone, nil
	case string(RoleTrainer):
		return RoleTrainer, nil
	case string(RoleClient):
		return RoleClient, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
}

// Profile はIdPのIdentityに紐づくローカルのユーザー情報を表す。
// IDはIdPが発行したidentity_idであり、ローカルで採番しない。
type Profile struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	Role         Role
	Active       bool
}

// RoleFields はロール別レコードの閉じたユニオン型。
// TrainerFields または ClientFields のいずれかで、RoleNone の場合は nil。
type RoleFields interface {
	Role() Role
}

// TrainerFields はトレーナー用のロール別レコード。
type TrainerFields struct {
	Bio             string
	Certifications  []string
	YearsExp        int
	OrganizationRef string
}

// Role はRoleFieldsインターフェースを実装する。
func (TrainerFields) Role() Role { return RoleTrainer }

// ClientFields はクライアント用のロール別レコード。
type ClientFields struct {
	FitnessGoal string
}

// Role はRoleFieldsインターフェースを実装する。
func (ClientFields) Role() Role { return RoleClient }

// ResolveRoleFields はロールとロール別フィールドの組み合わせを検証する。
// フィールド未指定のトレーナー/クライアントには空のレコードを補い、
// ロールと異なるバリアントが渡された場合はErrInvalidInputを返す。
func ResolveRoleFields(role Role, fields RoleFields) (RoleFields, error) {
	switch role {
	case RoleNone:
		if fields != nil {
			return nil, fmt.Errorf("%w: role fields given without a role", ErrInvalidInput)
		}
		return nil, nil
	case RoleTrainer:
		if fields == nil {
			return TrainerFields{}, nil
		}
	case RoleClient:
		if fields == nil {
			return ClientFields{}, nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	if fields.Role() != role {
		return nil, fmt.Errorf("%w: %s fields given for role %s", ErrInvalidInput, fields.Role(), role)
	}
	return fields, nil
}

// NewProfile はプロフィールとロール別レコードの作成に必要な入力を表す。
type NewProfile struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	Role         Role
	RoleFields   RoleFields
}

// ParseCertifications はカンマ区切りの資格文字列を順序付きリストに変換する。
// 各要素はトリムされ、空要素は除外される。
func ParseCertifications(raw string) []string {
	return NormalizeCertifications(strings.Split(raw, ","))
}

// NormalizeCertifications は資格リストの各要素をトリムし、空要素を除外する。
func NormalizeCertifications(certs []string) []string {
	out := make([]string, 0, len(certs))
	for _, c := range certs {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// ParseYearsExp は経験年数を解析する。非負整数として解釈できない値は0になる。
func ParseYearsExp(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return NormalizeYearsExp(n)
}

// NormalizeYearsExp は負の経験年数を0に丸める。
func NormalizeYearsExp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
