// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// MessageとActionは画面にそのまま表示するためベトナム語で保持する。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, profile, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // フィールド単位のバリデーションエラー（任意）

	// RetryAfter はクールダウン中の残り秒数。COOLDOWN_ACTIVEでのみ設定される。
	RetryAfter int
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeDuplicateAccount      = "DUPLICATE_ACCOUNT"
	ErrCodeUnverifiedEmail       = "UNVERIFIED_EMAIL"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeEmailNotRegistered    = "EMAIL_NOT_REGISTERED"
	ErrCodeWeakPassword          = "WEAK_PASSWORD"
	ErrCodeInvalidEmail          = "INVALID_EMAIL"
	ErrCodeExpiredOrInvalidToken = "EXPIRED_OR_INVALID_TOKEN"
	ErrCodeCooldownActive        = "COOLDOWN_ACTIVE"
	ErrCodeUnknownProvider       = "UNKNOWN_PROVIDER_ERROR"
	ErrCodeProfileNotFound       = "PROFILE_NOT_FOUND"
	ErrCodeProfileIncomplete     = "PROFILE_INCOMPLETE"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeResourceNotFound      = "RESOURCE_NOT_FOUND"
)

// NewValidationError はクライアント側のフィールド検証エラーを生成する。
// messageには最初に表示すべきエラーを渡す。
func NewValidationError(message string, fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Vui lòng kiểm tra lại thông tin đã nhập.",
		Fields:   fields,
	}
}

// NewDuplicateAccountError は登録済みメールアドレスでの再登録エラーを生成する。
func NewDuplicateAccountError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateAccount,
		Message:  "Email này đã được đăng ký. Vui lòng đăng nhập hoặc sử dụng email khác.",
		Category: "auth",
		Action:   "Đăng nhập bằng email này hoặc dùng email khác để đăng ký.",
	}
}

// NewUnverifiedEmailError はメール未確認のままログインしようとした場合のエラーを生成する。
func NewUnverifiedEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeUnverifiedEmail,
		Message:  "Email chưa được xác nhận. Vui lòng kiểm tra email của bạn.",
		Category: "auth",
		Action:   "Mở liên kết xác nhận trong email hoặc gửi lại email xác nhận.",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Email hoặc mật khẩu không đúng. Vui lòng thử lại.",
		Category: "auth",
		Action:   "Kiểm tra lại email và mật khẩu.",
	}
}

// NewEmailNotRegisteredError は未登録メールアドレスのエラーを生成する。
// ログイン画面とパスワード再設定画面で文言が異なるためmessageを受け取る。
func NewEmailNotRegisteredError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotRegistered,
		Message:  message,
		Category: "auth",
		Action:   "Đăng ký tài khoản mới với email này.",
	}
}

// NewWeakPasswordError はプロバイダーがパスワード強度不足と判定した場合のエラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "Mật khẩu quá yếu. Vui lòng chọn mật khẩu mạnh hơn.",
		Category: "validation",
		Action:   "Dùng mật khẩu dài hơn, kết hợp chữ, số và ký tự đặc biệt.",
	}
}

// NewInvalidEmailError はプロバイダーがメールアドレス形式を拒否した場合のエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "Email không hợp lệ",
		Category: "validation",
		Action:   "Nhập đúng định dạng email, ví dụ email@example.com.",
	}
}

// NewExpiredOrInvalidTokenError はパスワード再設定リンクが無効・期限切れの場合のエラーを生成する。
func NewExpiredOrInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeExpiredOrInvalidToken,
		Message:  "Link đặt lại mật khẩu không hợp lệ hoặc đã hết hạn",
		Category: "auth",
		Action:   "Yêu cầu gửi lại email đặt lại mật khẩu.",
	}
}

// NewCooldownActiveError は再送クールダウン中のエラーを生成する。
func NewCooldownActiveError(secondsLeft int) *APIError {
	return &APIError{
		Code:       ErrCodeCooldownActive,
		Message:    fmt.Sprintf("Vui lòng đợi %ds để gửi lại", secondsLeft),
		Category:   "auth",
		Action:     "Đợi hết thời gian chờ rồi thử lại.",
		RetryAfter: secondsLeft,
	}
}

// NewUnknownProviderError は分類できなかったプロバイダーエラーを生成する。
// fallbackには操作ごとの汎用メッセージ（例: "Đăng nhập thất bại"）を渡す。
func NewUnknownProviderError(fallback string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fallback,
		Category: "system",
		Action:   "Vui lòng thử lại sau ít phút.",
	}
}

// NewProfileNotFoundError はプロフィールが見つからない場合のエラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Không tìm thấy thông tin người dùng.",
		Category: "profile",
		Action:   "Vui lòng đăng nhập lại.",
	}
}

// NewProfileIncompleteError は必須プロフィール未入力で保護ページにアクセスした場合のエラーを生成する。
func NewProfileIncompleteError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileIncomplete,
		Message:  "Vui lòng hoàn thiện thông tin cá nhân trước khi tiếp tục.",
		Category: "profile",
		Action:   "Điền họ tên và ngày sinh tại trang hoàn thiện hồ sơ.",
	}
}

// NewUnauthorizedError は未ログインのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Vui lòng đăng nhập để tiếp tục.",
		Category: "auth",
		Action:   "Đăng nhập lại.",
	}
}

// NewResourceNotFoundError は学習コンテンツが見つからない場合のエラーを生成する。
func NewResourceNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("Không tìm thấy tài liệu: %s", name),
		Category: "content",
		Action:   "Quay lại danh sách tài liệu.",
	}
}
