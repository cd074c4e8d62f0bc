package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/learnhub/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Action     string            `json:"action"`
	Fields     map[string]string `json:"fields,omitempty"`
	RetryAfter int               `json:"retry_after,omitempty"`
	Redirect   string            `json:"redirect,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// クールダウン中のエラーにはRetry-Afterヘッダーを付与する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteErrorResponseWithRedirect(w, statusCode, apiErr, "")
}

// WriteErrorResponseWithRedirect はクライアントが遷移すべきパスを含めてエラーを書き込む。
func WriteErrorResponseWithRedirect(w http.ResponseWriter, statusCode int, apiErr *model.APIError, redirect string) {
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:       apiErr.Code,
		Message:    apiErr.Message,
		Category:   apiErr.Category,
		Action:     apiErr.Action,
		Fields:     apiErr.Fields,
		RetryAfter: apiErr.RetryAfter,
		Redirect:   redirect,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Đã xảy ra lỗi hệ thống.",
		Category: "system",
		Action:   "Vui lòng thử lại sau ít phút.",
	})
}
