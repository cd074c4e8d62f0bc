package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthMethod はアクセストークンのamrクレームの1要素。
type AuthMethod struct {
	Method    string `json:"method"`
	Timestamp int64  `json:"timestamp"`
}

// Claims はIdPが発行するアクセストークンのクレーム。
type Claims struct {
	Email string       `json:"email"`
	Role  string       `json:"role"`
	AMR   []AuthMethod `json:"amr"`
	jwt.RegisteredClaims
}

// HasMethod はamrに指定の認証方式が含まれるかを返す。
// パスワード再設定リンク経由のセッションは "recovery" を含む。
func (c *Claims) HasMethod(method string) bool {
	for _, m := range c.AMR {
		if m.Method == method {
			return true
		}
	}
	return false
}

// TokenVerifier はIdPのJWTシークレットでアクセストークンをローカル検証する。
// IdPへの問い合わせなしにセッションの有効性を判定するために使用する。
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewTokenVerifier はTokenVerifierを生成する。
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), now: time.Now}
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	},
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to verify access token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid access token")
	}
	if claims.Subject == "" {
		return nil, errors.New("access token missing subject")
	}
	return claims, nil
}
