package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/learnhub/internal/auth"
	"github.com/hitoshi/learnhub/internal/model"
)

// SessionGuard はセッションに対するゲート判定を行う。auth.Serviceが実装する。
type SessionGuard interface {
	GuardSession(ctx context.Context, session *model.Session) (auth.Decision, error)
}

// NewGateMiddleware は保護ページ用のゲートミドルウェアを返す。
// セッションミドルウェアの後段に置き、プロフィール未完了のユーザーには
// 403 PROFILE_INCOMPLETEと遷移先/profile/completeを返す。
func NewGateMiddleware(guard SessionGuard) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := guard.GuardSession(r.Context(), SessionFromContext(r.Context()))
			if err != nil {
				slog.Error("gate decision failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			switch decision {
			case auth.DecisionAllow:
				next.ServeHTTP(w, r)
			case auth.DecisionCompleteProfile:
				WriteErrorResponseWithRedirect(w, http.StatusForbidden, model.NewProfileIncompleteError(), decision.Redirect())
			default:
				WriteErrorResponseWithRedirect(w, http.StatusUnauthorized, model.NewUnauthorizedError(), decision.Redirect())
			}
		})
	}
}
