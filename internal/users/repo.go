package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
)

// Repository persists accounts. Email and username lookups are case-insensitive.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a repository to conn, which may be a transaction.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) Create(ctx context.Context, input NewUser) (*models.User, error) {
	user := input.model()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "lower(email) = ?", normalize(email))
}

func (r *Repository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, "lower(username) = ?", normalize(username))
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

// Taken reports which of email and username already belong to an account.
func (r *Repository) Taken(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error) {
	var rows []models.User
	err = r.db.WithContext(ctx).
		Select("email", "username").
		Where("lower(email) = ? OR lower(username) = ?", normalize(email), normalize(username)).
		Find(&rows).Error
	if err != nil {
		return false, false, err
	}
	for _, row := range rows {
		emailTaken = emailTaken || strings.EqualFold(row.Email, strings.TrimSpace(email))
		usernameTaken = usernameTaken || strings.EqualFold(row.Username, strings.TrimSpace(username))
	}
	return emailTaken, usernameTaken, nil
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateColumn(ctx, id, "last_login_at", at)
}

// UpdatePasswordHash replaces the stored credential, used when a login
// upgrades a legacy or weaker hash.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.updateColumn(ctx, id, "password_hash", hash)
}

func (r *Repository) first(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(query, arg).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) updateColumn(ctx context.Context, id uuid.UUID, column string, value any) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
