package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Kind はIdPエラーの分類。
type Kind int

const (
	// KindUnknown は分類できなかったエラー。
	KindUnknown Kind = iota
	// KindDuplicateAccount は登録済みメールアドレスでのサインアップ。
	KindDuplicateAccount
	// KindUnverifiedEmail はメール未確認のユーザーによるログイン。
	KindUnverifiedEmail
	// KindInvalidCredentials はメールアドレスまたはパスワードの不一致。
	KindInvalidCredentials
	// KindUserNotFound は未登録のメールアドレス。
	KindUserNotFound
	// KindWeakPassword はIdPのパスワードポリシー違反。
	KindWeakPassword
	// KindInvalidEmail はIdPが受け付けないメールアドレス形式。
	KindInvalidEmail
	// KindExpiredOrInvalidToken は期限切れまたは不正なコード・トークン。
	KindExpiredOrInvalidToken
	// KindRateLimited はIdP側のレート制限。
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindDuplicateAccount:      "duplicate_account",
	KindUnverifiedEmail:       "unverified_email",
	KindInvalidCredentials:    "invalid_credentials",
	KindUserNotFound:          "user_not_found",
	KindWeakPassword:          "weak_password",
	KindInvalidEmail:          "invalid_email",
	KindExpiredOrInvalidToken: "expired_or_invalid_token",
	KindRateLimited:           "rate_limited",
}

// String はKindの名前を返す。
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error はIdPが返したエラーを表す。
type Error struct {
	Kind    Kind
	Status  int    // HTTPステータス（通信エラーの場合は0）
	Code    string // IdPのエラーコード（error_code）
	Message string // IdPのエラーメッセージ（表示には使用しない）
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider error (%s, status %d, code %s): %s", e.Kind, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity provider error (%s, status %d): %s", e.Kind, e.Status, e.Message)
}

// KindOf はerrに含まれる *Error のKindを返す。*Error でない場合はKindUnknown。
func KindOf(err error) Kind {
	var idErr *Error
	if errors.As(err, &idErr) {
		return idErr.Kind
	}
	return KindUnknown
}

// codeKinds はIdPのerror_codeから分類へのマッピング。
var codeKinds = map[string]Kind{
	"user_already_exists":        KindDuplicateAccount,
	"email_exists":               KindDuplicateAccount,
	"email_not_confirmed":        KindUnverifiedEmail,
	"invalid_credentials":        KindInvalidCredentials,
	"user_not_found":             KindUserNotFound,
	"weak_password":              KindWeakPassword,
	"email_address_invalid":      KindInvalidEmail,
	"otp_expired":                KindExpiredOrInvalidToken,
	"bad_jwt":                    KindExpiredOrInvalidToken,
	"session_not_found":          KindExpiredOrInvalidToken,
	"session_expired":            KindExpiredOrInvalidToken,
	"refresh_token_not_found":    KindExpiredOrInvalidToken,
	"refresh_token_already_used": KindExpiredOrInvalidToken,
	"flow_state_not_found":       KindExpiredOrInvalidToken,
	"flow_state_expired":         KindExpiredOrInvalidToken,
	"bad_code_verifier":          KindExpiredOrInvalidToken,
	"over_email_send_rate_limit": KindRateLimited,
	"over_request_rate_limit":    KindRateLimited,
}

// messageKinds はerror_codeを返さない古いIdP向けのメッセージ部分一致ルール。
// 上から順に評価する。
var messageKinds = []struct {
	fragment string
	kind     Kind
}{
	{"already registered", KindDuplicateAccount},
	{"already been registered", KindDuplicateAccount},
	{"email not confirmed", KindUnverifiedEmail},
	{"invalid login credentials", KindInvalidCredentials},
	{"email not found", KindUserNotFound},
	{"user not found", KindUserNotFound},
	{"password should be", KindWeakPassword},
	{"weak password", KindWeakPassword},
	{"unable to validate email", KindInvalidEmail},
	{"invalid email", KindInvalidEmail},
	{"invalid format", KindInvalidEmail},
	{"expired", KindExpiredOrInvalidToken},
	{"invalid flow state", KindExpiredOrInvalidToken},
	{"invalid refresh token", KindExpiredOrInvalidToken},
	{"invalid token", KindExpiredOrInvalidToken},
	{"rate limit", KindRateLimited},
}

// classify はIdPのエラーレスポンスを分類する。
// error_codeを優先し、該当しない場合のみメッセージを参照する。
func classify(status int, code, message string) Kind {
	if kind, ok := codeKinds[strings.ToLower(code)]; ok {
		return kind
	}

	lower := strings.ToLower(message)
	for _, rule := range messageKinds {
		if strings.Contains(lower, rule.fragment) {
			return rule.kind
		}
	}

	if status == 429 {
		return KindRateLimited
	}
	return KindUnknown
}
