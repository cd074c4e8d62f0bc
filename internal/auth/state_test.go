package auth

import "testing"

func TestTransition_Allowed(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		event Event
		want  State
	}{
		{"サインアップ送信", StateAnonymous, EventSubmitSignUp, StateRegistering},
		{"サインアップ成功", StateRegistering, EventSignUpSucceeded, StatePendingVerification},
		{"サインアップ失敗", StateRegistering, EventSignUpFailed, StateAnonymous},
		{"再送", StatePendingVerification, EventResendRequested, StatePendingVerification},
		{"確認リンク・未完了", StatePendingVerification, EventAuthenticatedIncomplete, StateVerifiedIncompleteProfile},
		{"確認リンク・完了済み", StatePendingVerification, EventAuthenticatedComplete, StateComplete},
		{"プロフィール入力", StateVerifiedIncompleteProfile, EventProfileCompleted, StateComplete},
		{"再ログイン・完了済み", StateComplete, EventAuthenticatedComplete, StateComplete},
		{"再ログイン・未完了", StateVerifiedIncompleteProfile, EventAuthenticatedIncomplete, StateVerifiedIncompleteProfile},
		{"ログアウト", StateComplete, EventSignedOut, StateAnonymous},
		{"確認待ちからログアウト", StatePendingVerification, EventSignedOut, StateAnonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			if err != nil {
				t.Fatalf("Transition returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Transition(%s, %s) = %s, want %s", tt.from, tt.event, got, tt.want)
			}
		})
	}
}

func TestTransition_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		event Event
	}{
		{"未登録でプロフィール完了", StateAnonymous, EventProfileCompleted},
		{"確認待ちでプロフィール完了", StatePendingVerification, EventProfileCompleted},
		{"登録中に再送", StateRegistering, EventResendRequested},
		{"完了済みで再サインアップ", StateComplete, EventSubmitSignUp},
		{"未登録でサインアップ成功", StateAnonymous, EventSignUpSucceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			if err == nil {
				t.Fatalf("expected error, got %s", got)
			}
			if got != tt.from {
				t.Errorf("state should not change on rejected transition, got %s", got)
			}
		})
	}
}

func TestAdvance_StopsAtFirstInvalidEvent(t *testing.T) {
	got, err := advance(StateAnonymous, EventSubmitSignUp, EventSignUpSucceeded)
	if err != nil || got != StatePendingVerification {
		t.Fatalf("advance = %s, %v", got, err)
	}

	got, err = advance(StateAnonymous, EventSubmitSignUp, EventProfileCompleted)
	if err == nil {
		t.Fatal("expected error")
	}
	if got != StateAnonymous {
		t.Errorf("state = %s, want anonymous", got)
	}
}
