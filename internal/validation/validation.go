// Package validation はフォーム入力のクライアント側検証を提供する。
// ここでのエラーはネットワークに到達する前に送信をブロックする。
// メッセージは画面表示用のベトナム語。
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultMinAge は登録可能な最低年齢。
	DefaultMinAge = 13
	// MaxAge はこれを超える年齢を不正な生年月日とみなす上限。
	MaxAge = 120
	// MinPasswordLength はパスワードの最小文字数。
	MinPasswordLength = 6
	// MinFullNameLength は氏名の最小文字数（トリム後）。
	MinFullNameLength = 2

	// DateLayout は生年月日の入力形式。
	DateLayout = "2006-01-02"
)

// フィールド名（レスポンスのFieldsキー）
const (
	FieldFullName        = "full_name"
	FieldDateOfBirth     = "date_of_birth"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
)

var dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateFullName は氏名を検証する。問題がなければ空文字列を返す。
func ValidateFullName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "Họ và tên không được để trống"
	}
	if utf8.RuneCountInString(trimmed) < MinFullNameLength {
		return fmt.Sprintf("Họ và tên phải có ít nhất %d ký tự", MinFullNameLength)
	}
	return ""
}

// ValidateDateOfBirth は生年月日（YYYY-MM-DD）を検証する。問題がなければ空文字列を返す。
// 未来日は年齢に関係なく常にエラー。年齢は誕生日を迎えたかどうかで数える満年齢。
func ValidateDateOfBirth(date string, minAge int, now time.Time) string {
	if date == "" {
		return "Ngày sinh không được để trống"
	}
	if !dateRegex.MatchString(date) {
		return "Ngày sinh phải đúng định dạng YYYY-MM-DD"
	}

	birth, err := time.ParseInLocation(DateLayout, date, now.Location())
	if err != nil {
		return "Ngày sinh không hợp lệ"
	}

	today := truncateToDate(now)
	if birth.After(today) {
		return "Ngày sinh không thể là ngày tương lai"
	}

	age := Age(birth, today)
	if age < minAge {
		return fmt.Sprintf("Bạn phải từ %d tuổi trở lên", minAge)
	}
	if age > MaxAge {
		return "Ngày sinh không hợp lệ"
	}

	return ""
}

// ParseDateOfBirth はYYYY-MM-DD形式の生年月日をUTCの日付として解析する。
// ValidateDateOfBirthで検証済みの値に対して使用する。
func ParseDateOfBirth(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date of birth %q: %w", date, err)
	}
	return t, nil
}

// Age はbirthからtodayまでの満年齢を返す。
func Age(birth, today time.Time) int {
	age := today.Year() - birth.Year()
	if today.Month() < birth.Month() ||
		(today.Month() == birth.Month() && today.Day() < birth.Day()) {
		age--
	}
	return age
}

// ValidateEmail はメールアドレスを検証する。問題がなければ空文字列を返す。
func ValidateEmail(email string) string {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "Email không được để trống"
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed || !strings.Contains(trimmed[strings.LastIndex(trimmed, "@"):], ".") {
		return "Email không hợp lệ"
	}
	return ""
}

// ValidatePassword はパスワードを検証する。問題がなければ空文字列を返す。
func ValidatePassword(password string) string {
	if password == "" {
		return "Mật khẩu không được để trống"
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Sprintf("Mật khẩu phải có ít nhất %d ký tự", MinPasswordLength)
	}
	return ""
}

// ValidatePasswordConfirmation はパスワード確認欄の一致を検証する。
func ValidatePasswordConfirmation(password, confirm string) string {
	if password != confirm {
		return "Mật khẩu xác nhận không khớp"
	}
	return ""
}

// ProfileInput はプロフィールフォームの入力値。
type ProfileInput struct {
	FullName    string
	DateOfBirth string
}

// ValidateProfile はプロフィールフォーム全体を検証し、フィールドごとのエラーを返す。
// エラーがなければ空のmapを返す。
func ValidateProfile(in ProfileInput, minAge int, now time.Time) map[string]string {
	errs := make(map[string]string)
	if msg := ValidateFullName(in.FullName); msg != "" {
		errs[FieldFullName] = msg
	}
	if msg := ValidateDateOfBirth(in.DateOfBirth, minAge, now); msg != "" {
		errs[FieldDateOfBirth] = msg
	}
	return errs
}

// NormalizeEmail は比較・キー生成用にメールアドレスを正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
