package model

// TokenTypeBearer はIdPが発行するトークン種別。
const TokenTypeBearer = "bearer"

// Session はIdPが発行したトークンペアを表す。永続化しない。
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Metadata はIdentity作成時にIdPへ渡す不透明なユーザーメタデータ。
type Metadata struct {
	FullName string
	Phone    string
	Role     Role
}

// RegisterInput はユーザー登録の入力を表す。
type RegisterInput struct {
	Name       string
	Email      string
	Password   string
	Phone      string
	Role       Role
	RoleFields RoleFields
}

// AuthResult は登録・ログイン成功時に返すプロフィールとセッションの組。
type AuthResult struct {
	Profile *Profile
	Session *Session
}
