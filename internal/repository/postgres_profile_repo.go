package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/learnhub/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, email, full_name, date_of_birth, role_id, created_at`

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM users WHERE id = $1`,
		id,
	)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return profile, nil
}

// ExistsByEmail は指定メールアドレスのプロフィールが存在するかを返す。
func (r *PostgresProfileRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = $1)`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check profile email: %w", err)
	}
	return exists, nil
}

// CreateIfNotExists はプロフィールが無い場合のみ作成する。
func (r *PostgresProfileRepo) CreateIfNotExists(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, date_of_birth, role_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		profile.ID, profile.Email, nullString(profile.FullName), profile.DateOfBirth,
		profile.RoleID, profile.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// Update はfull_nameとdate_of_birthのみを部分更新する。
// COALESCEによりnilのフィールドは既存の値を維持する。
func (r *PostgresProfileRepo) Update(ctx context.Context, id string, update model.ProfileUpdate) (*model.Profile, error) {
	var fullName sql.NullString
	if update.FullName != nil {
		fullName = sql.NullString{String: strings.TrimSpace(*update.FullName), Valid: true}
	}

	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET
		    full_name = COALESCE($2, full_name),
		    date_of_birth = COALESCE($3, date_of_birth)
		 WHERE id = $1
		 RETURNING `+profileColumns,
		id, fullName, update.DateOfBirth,
	)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return profile, nil
}

func scanProfile(row *sql.Row) (*model.Profile, error) {
	profile := &model.Profile{}
	var fullName sql.NullString
	var dateOfBirth sql.NullTime

	if err := row.Scan(
		&profile.ID, &profile.Email, &fullName, &dateOfBirth,
		&profile.RoleID, &profile.CreatedAt,
	); err != nil {
		return nil, err
	}

	profile.FullName = nullStringValue(fullName)
	if dateOfBirth.Valid {
		dob := dateOfBirth.Time
		profile.DateOfBirth = &dob
	}
	return profile, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
