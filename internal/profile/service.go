// Package profile はアプリケーション側のユーザープロフィール管理を提供する。
// 書き込み可能なのはfull_nameとdate_of_birthのみで、常に本人のユーザーIDでスコープする。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/repository"
	"github.com/hitoshi/learnhub/internal/validation"
)

// 完了判定後の遷移先
const (
	HomePath            = "/"
	CompleteProfilePath = "/profile/complete"
)

// updateFallbackMessage はプロフィール更新失敗時の汎用メッセージ。
const updateFallbackMessage = "Cập nhật thông tin thất bại"

// UpdateInput はプロフィール更新の入力値。nilのフィールドは変更しない。
type UpdateInput struct {
	FullName    *string
	DateOfBirth *string // YYYY-MM-DD
}

// CompletionStatus はプロフィール完了画面の表示判定結果。
type CompletionStatus struct {
	Complete bool
	Redirect string // 完了済みの場合の遷移先。未完了なら空
	Profile  *model.Profile
}

// Service はプロフィールのサービス層。
type Service struct {
	repo   repository.ProfileRepository
	minAge int
	now    func() time.Time
}

// NewService はServiceを生成する。minAgeが0以下の場合はvalidation.DefaultMinAgeを使用する。
func NewService(repo repository.ProfileRepository, minAge int) *Service {
	if minAge <= 0 {
		minAge = validation.DefaultMinAge
	}
	return &Service{repo: repo, minAge: minAge, now: time.Now}
}

// Get は本人のプロフィールを取得する。存在しない場合はPROFILE_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return p, nil
}

// IsComplete はプロフィールの必須項目が埋まっているかを返す。
// プロフィールが存在しない場合はfalse。
func (s *Service) IsComplete(ctx context.Context, userID string) (bool, error) {
	p, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return p.IsComplete(), nil
}

// EnsureProfile はIdPのユーザーに対応するプロフィール行を用意する。
// 既存の行は変更しない。full_nameはサインアップ時のメタデータから複製する。
func (s *Service) EnsureProfile(ctx context.Context, user model.IdentityUser) error {
	p := &model.Profile{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		RoleID:    model.DefaultRoleID,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateIfNotExists(ctx, p); err != nil {
		return fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はfull_nameとdate_of_birthのうち指定されたものを検証して更新する。
// 両方nilの場合は現在のプロフィールを返す。
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (*model.Profile, error) {
	fields := make(map[string]string)
	var update model.ProfileUpdate

	if in.FullName != nil {
		if msg := validation.ValidateFullName(*in.FullName); msg != "" {
			fields[validation.FieldFullName] = msg
		}
		update.FullName = in.FullName
	}
	if in.DateOfBirth != nil {
		dob, msg := s.parseDateOfBirth(*in.DateOfBirth)
		if msg != "" {
			fields[validation.FieldDateOfBirth] = msg
		}
		update.DateOfBirth = dob
	}
	if len(fields) > 0 {
		return nil, newFieldsError(fields)
	}

	if update.FullName == nil && update.DateOfBirth == nil {
		return s.Get(ctx, userID)
	}

	p, err := s.repo.Update(ctx, userID, update)
	if err != nil {
		slog.Error("プロフィールの更新に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnknownProviderError(updateFallbackMessage)
	}
	if p == nil {
		return nil, model.NewProfileNotFoundError()
	}

	slog.Info("プロフィールを更新しました",
		slog.String("user_id", userID),
		slog.Bool("complete", p.IsComplete()),
	)
	return p, nil
}

// Complete は初回のプロフィール入力を行う。氏名と生年月日の両方が必須。
func (s *Service) Complete(ctx context.Context, userID, fullName, dateOfBirth string) (*model.Profile, error) {
	fields := validation.ValidateProfile(validation.ProfileInput{
		FullName:    fullName,
		DateOfBirth: dateOfBirth,
	}, s.minAge, s.now())
	if len(fields) > 0 {
		return nil, newFieldsError(fields)
	}
	return s.Update(ctx, userID, UpdateInput{FullName: &fullName, DateOfBirth: &dateOfBirth})
}

// CompletionStatus はプロフィール完了画面を表示すべきかを判定する。
// 完了済みの場合はホームへの遷移先を返す。
func (s *Service) CompletionStatus(ctx context.Context, userID string) (*CompletionStatus, error) {
	p, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	status := &CompletionStatus{Complete: p.IsComplete(), Profile: p}
	if status.Complete {
		status.Redirect = HomePath
	}
	return status, nil
}

func (s *Service) parseDateOfBirth(date string) (*time.Time, string) {
	if msg := validation.ValidateDateOfBirth(date, s.minAge, s.now()); msg != "" {
		return nil, msg
	}
	dob, err := validation.ParseDateOfBirth(date)
	if err != nil {
		return nil, "Ngày sinh không hợp lệ"
	}
	return &dob, ""
}

// newFieldsError はフィールドエラーから検証エラーを生成する。
// メッセージは氏名、生年月日の順で最初のエラーを使用する。
func newFieldsError(fields map[string]string) *model.APIError {
	msg := fields[validation.FieldFullName]
	if msg == "" {
		msg = fields[validation.FieldDateOfBirth]
	}
	return model.NewValidationError(msg, fields)
}
