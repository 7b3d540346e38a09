package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

// UserDTO is the public view of an account. Credentials never leave the
// repository.
type UserDTO struct {
	ID          uuid.UUID      `json:"id"`
	Username    string         `json:"username"`
	Email       string         `json:"email"`
	FirstName   string         `json:"first_name,omitempty"`
	LastName    string         `json:"last_name,omitempty"`
	Role        enums.UserRole `json:"role"`
	IsActive    bool           `json:"is_active"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

// NewUser is an account about to be inserted. PasswordHash must already be
// an encoded hash. Accounts always start active.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         enums.UserRole
}

// model normalizes the input the same way lookups do, so a stored email
// always matches FindByEmail. Unknown roles fall back to buyer.
func (n NewUser) model() *models.User {
	role := n.Role
	if !role.IsValid() {
		role = enums.UserRoleBuyer
	}
	return &models.User{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(n.Username),
		Email:        normalize(n.Email),
		PasswordHash: n.PasswordHash,
		FirstName:    strings.TrimSpace(n.FirstName),
		LastName:     strings.TrimSpace(n.LastName),
		Role:         role,
		IsActive:     true,
	}
}
