package auth

import "fmt"

// State は認証・プロフィール完了ゲートの状態。
type State string

const (
	StateAnonymous                 State = "anonymous"
	StateRegistering               State = "registering"
	StatePendingVerification       State = "pending_verification"
	StateVerifiedIncompleteProfile State = "verified_incomplete_profile"
	StateComplete                  State = "complete"
)

// Event は状態遷移を引き起こすIdPの応答またはユーザー操作。
type Event string

const (
	EventSubmitSignUp            Event = "submit_signup"
	EventSignUpSucceeded         Event = "signup_succeeded"
	EventSignUpFailed            Event = "signup_failed"
	EventResendRequested         Event = "resend_requested"
	EventAuthenticatedIncomplete Event = "authenticated_incomplete"
	EventAuthenticatedComplete   Event = "authenticated_complete"
	EventProfileCompleted        Event = "profile_completed"
	EventSignedOut               Event = "signed_out"
)

// authenticatedFrom はセッション確立（ログイン・コールバック）を受け付ける状態。
// ログインのたびにプロフィールの完了状態を評価し直す。
var authenticatedFrom = []State{
	StateAnonymous,
	StatePendingVerification,
	StateVerifiedIncompleteProfile,
	StateComplete,
}

var transitions = buildTransitions()

func buildTransitions() map[State]map[Event]State {
	t := map[State]map[Event]State{
		StateAnonymous: {
			EventSubmitSignUp: StateRegistering,
		},
		StateRegistering: {
			EventSignUpSucceeded: StatePendingVerification,
			EventSignUpFailed:    StateAnonymous,
		},
		StatePendingVerification: {
			EventResendRequested: StatePendingVerification,
		},
		StateVerifiedIncompleteProfile: {
			EventProfileCompleted: StateComplete,
		},
		StateComplete: {
			EventProfileCompleted: StateComplete,
		},
	}
	for _, from := range authenticatedFrom {
		t[from][EventAuthenticatedIncomplete] = StateVerifiedIncompleteProfile
		t[from][EventAuthenticatedComplete] = StateComplete
	}
	for from := range t {
		t[from][EventSignedOut] = StateAnonymous
	}
	return t
}

// Transition はfromの状態でeventが起きた場合の遷移先を返す。
// 許可されていない遷移の場合はエラーを返し、状態は変わらない。
func Transition(from State, event Event) (State, error) {
	next, ok := transitions[from][event]
	if !ok {
		return from, fmt.Errorf("invalid transition: %s --%s-->", from, event)
	}
	return next, nil
}

// advance はeventsを順に適用した結果の状態を返す。
func advance(from State, events ...Event) (State, error) {
	state := from
	for _, ev := range events {
		next, err := Transition(state, ev)
		if err != nil {
			return from, err
		}
		state = next
	}
	return state, nil
}

// authenticatedEvent はプロフィールの完了状態に応じたセッション確立イベントを返す。
func authenticatedEvent(complete bool) Event {
	if complete {
		return EventAuthenticatedComplete
	}
	return EventAuthenticatedIncomplete
}
