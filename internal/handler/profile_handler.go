package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/learnhub/internal/auth"
	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	Update(ctx context.Context, userID string, in profile.UpdateInput) (*model.Profile, error)
	CompletionStatus(ctx context.Context, userID string) (*profile.CompletionStatus, error)
}

// ProfileCompleter は初回のプロフィール入力を保存し、認証状態を進める。auth.Serviceが実装する。
type ProfileCompleter interface {
	CompleteProfile(ctx context.Context, userID, fullName, dateOfBirth string) (*auth.Result, error)
}

// ProfileHandler はプロフィール関連のHTTPハンドラー。
// 全てのルートはセッションミドルウェアの後段に置く。
type ProfileHandler struct {
	service   ProfileServiceInterface
	completer ProfileCompleter
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface, completer ProfileCompleter) *ProfileHandler {
	return &ProfileHandler{
		service:   service,
		completer: completer,
	}
}

type profileResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	RoleID      int    `json:"role_id"`
	Complete    bool   `json:"complete"`
}

// updateProfileRequest はプロフィール更新リクエスト。省略したフィールドは変更しない。
type updateProfileRequest struct {
	FullName    *string `json:"full_name"`
	DateOfBirth *string `json:"date_of_birth"`
}

type completeProfileRequest struct {
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
}

type completionStatusResponse struct {
	Complete bool             `json:"complete"`
	Redirect string           `json:"redirect,omitempty"`
	Profile  *profileResponse `json:"profile,omitempty"`
}

// GetProfile は本人のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// UpdateProfile は氏名と生年月日のうち指定されたものを更新する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Update(r.Context(), userID, profile.UpdateInput{
		FullName:    req.FullName,
		DateOfBirth: req.DateOfBirth,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// CompletionStatus はプロフィール完了画面を表示すべきかを返す。
// 完了済みの場合はホームへの遷移先を含む。
// GET /api/profile/complete
func (h *ProfileHandler) CompletionStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	st, err := h.service.CompletionStatus(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := completionStatusResponse{Complete: st.Complete, Redirect: st.Redirect}
	if st.Profile != nil {
		p := toProfileResponse(st.Profile)
		resp.Profile = &p
	}
	writeJSON(w, http.StatusOK, resp)
}

// CompleteProfile は初回のプロフィール入力を保存する。
// POST /api/profile/complete
func (h *ProfileHandler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req completeProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.completer.CompleteProfile(r.Context(), userID, req.FullName, req.DateOfBirth)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		State:    string(res.State),
		Redirect: res.Redirect,
		Message:  res.Message,
	})
}

// toProfileResponse はmodel.ProfileからAPIレスポンスに変換する。
func toProfileResponse(p *model.Profile) profileResponse {
	resp := profileResponse{
		ID:       p.ID,
		Email:    p.Email,
		FullName: p.FullName,
		RoleID:   p.RoleID,
		Complete: p.IsComplete(),
	}
	if p.DateOfBirth != nil {
		resp.DateOfBirth = p.DateOfBirth.Format("2006-01-02")
	}
	return resp
}
