package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/fitauth/internal/model"
)

// registerRequest は登録リクエストのボディ。
type registerRequest struct {
	Name     string          `json:"name"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=8,max=72"`
	Phone    string          `json:"phone"`
	UserType string          `json:"user_type" validate:"omitempty,oneof=trainer client none"`
	Trainer  *trainerRequest `json:"trainer" validate:"omitempty"`
	Client   *clientRequest  `json:"client" validate:"omitempty"`
}

// trainerRequest はトレーナー用の追加フィールド。
// certificationsは文字列（カンマ区切り）と文字列リストのどちらも受け付ける。
// years_expは数値と数値文字列のどちらも受け付ける。
type trainerRequest struct {
	Bio            string          `json:"bio"`
	Certifications json.RawMessage `json:"certifications"`
	OrganizationID string          `json:"organization_id" validate:"omitempty,uuid"`
	YearsExp       json.RawMessage `json:"years_exp"`
}

type clientRequest struct {
	FitnessGoal string `json:"fitness_goal"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// newValidator はJSONフィールド名でエラーを報告するvalidatorを生成する。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage はvalidatorのエラーを利用者向けの一文にまとめる。
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fieldMessage(e))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", e.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", e.Field(), e.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", e.Field())
	default:
		return fmt.Sprintf("%s is invalid", e.Field())
	}
}

// toRegisterInput はリクエストをドメイン入力に変換する。
// ロールと異なるバリアントのフィールドだけが渡された場合はErrInvalidInputを返す。
func (req *registerRequest) toRegisterInput() (model.RegisterInput, error) {
	role, err := model.ParseRole(req.UserType)
	if err != nil {
		return model.RegisterInput{}, err
	}

	in := model.RegisterInput{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Phone:    strings.TrimSpace(req.Phone),
		Role:     role,
	}

	switch role {
	case model.RoleTrainer:
		if req.Client != nil {
			return model.RegisterInput{}, fmt.Errorf("%w: client fields given for role trainer", model.ErrInvalidInput)
		}
		if req.Trainer != nil {
			fields, err := req.Trainer.toFields()
			if err != nil {
				return model.RegisterInput{}, err
			}
			in.RoleFields = fields
		}
	case model.RoleClient:
		if req.Trainer != nil {
			return model.RegisterInput{}, fmt.Errorf("%w: trainer fields given for role client", model.ErrInvalidInput)
		}
		if req.Client != nil {
			in.RoleFields = model.ClientFields{FitnessGoal: strings.TrimSpace(req.Client.FitnessGoal)}
		}
	default:
		// ロール未指定時の追加フィールドは無視する
	}

	return in, nil
}

func (t *trainerRequest) toFields() (model.TrainerFields, error) {
	certs, err := parseCertifications(t.Certifications)
	if err != nil {
		return model.TrainerFields{}, err
	}
	return model.TrainerFields{
		Bio:             strings.TrimSpace(t.Bio),
		Certifications:  certs,
		YearsExp:        parseYearsExp(t.YearsExp),
		OrganizationRef: t.OrganizationID,
	}, nil
}

// parseCertifications は文字列またはリストの資格を正規化する。
func parseCertifications(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []string{}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return model.ParseCertifications(s), nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return model.NormalizeCertifications(list), nil
	}
	return nil, fmt.Errorf("%w: certifications must be a string or a list of strings", model.ErrInvalidInput)
}

// parseYearsExp は数値または数値文字列の経験年数を解釈する。解釈できない値は0。
func parseYearsExp(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return model.ParseYearsExp(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	i, err := strconv.Atoi(n.String())
	if err != nil {
		return 0
	}
	return model.NormalizeYearsExp(i)
}
