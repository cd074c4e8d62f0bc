package auth

import (
	"errors"
	"log/slog"

	"github.com/hitoshi/learnhub/internal/identity"
	"github.com/hitoshi/learnhub/internal/model"
)

// flow は認証操作の種別。メトリクスのラベルと汎用エラーメッセージの選択に使う。
type flow string

const (
	flowSignUp          flow = "signup"
	flowLogin           flow = "login"
	flowResend          flow = "resend"
	flowForgotPassword  flow = "forgot_password"
	flowResetPassword   flow = "reset_password"
	flowCallback        flow = "callback"
	flowCompleteProfile flow = "complete_profile"
)

// 分類できなかったエラーで表示する操作ごとの汎用メッセージ
var fallbackMessages = map[flow]string{
	flowSignUp:          "Đăng ký thất bại",
	flowLogin:           "Đăng nhập thất bại",
	flowResend:          "Gửi lại email thất bại",
	flowForgotPassword:  "Gửi yêu cầu thất bại",
	flowResetPassword:   "Đặt lại mật khẩu thất bại",
	flowCallback:        "Xác thực thất bại",
	flowCompleteProfile: "Cập nhật thông tin thất bại",
}

// 未登録メールアドレスの文言は画面ごとに異なる
const (
	loginNotRegisteredMessage  = "Email này chưa được đăng ký. Vui lòng đăng ký tài khoản mới."
	forgotNotRegisteredMessage = "Email này chưa được đăng ký trong hệ thống."
)

// toAPIError はIdPのエラーを画面表示用のAPIErrorに変換する。
// 分類済みの原因は専用のエラーに、それ以外は操作ごとの汎用メッセージにする。
func toAPIError(f flow, err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch identity.KindOf(err) {
	case identity.KindDuplicateAccount:
		return model.NewDuplicateAccountError()
	case identity.KindUnverifiedEmail:
		return model.NewUnverifiedEmailError()
	case identity.KindInvalidCredentials:
		return model.NewInvalidCredentialsError()
	case identity.KindUserNotFound:
		if f == flowForgotPassword {
			return model.NewEmailNotRegisteredError(forgotNotRegisteredMessage)
		}
		return model.NewEmailNotRegisteredError(loginNotRegisteredMessage)
	case identity.KindWeakPassword:
		return model.NewWeakPasswordError()
	case identity.KindInvalidEmail:
		return model.NewInvalidEmailError()
	case identity.KindExpiredOrInvalidToken:
		return model.NewExpiredOrInvalidTokenError()
	}

	slog.Warn("unclassified identity provider error",
		slog.String("flow", string(f)),
		slog.String("error", err.Error()),
	)
	return model.NewUnknownProviderError(fallbackMessages[f])
}

// outcome はメトリクス用の結果ラベルを返す。成功時は "success"、失敗時はエラーコード。
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "error"
}
