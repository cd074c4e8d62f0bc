package auth

// Decision は保護ページのゲート判定結果。
type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionLogin           Decision = "login"
	DecisionCompleteProfile Decision = "complete_profile"
)

// Redirect は判定結果に対応する遷移先を返す。許可の場合は空文字列。
func (d Decision) Redirect() string {
	switch d {
	case DecisionLogin:
		return LoginPath
	case DecisionCompleteProfile:
		return CompleteProfilePath
	default:
		return ""
	}
}
