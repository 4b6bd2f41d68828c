package dto

import (
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// SignupRequest payload for self registration.
type SignupRequest struct {
	Name        string      `json:"name" validate:"required,max=100"`
	Email       string      `json:"email" validate:"required,email"`
	Password    string      `json:"password" validate:"required,min=6,max=128"`
	PhoneNumber string      `json:"phone_number" validate:"max=20"`
	Role        domain.Role `json:"role" validate:"required,oneof=CLIENT FREELANCER"`
	PhotoID     *string     `json:"photo_id"`
}

// LoginRequest payload for the password grant.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest payload for the refresh grant.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UpdateProfileRequest lists self-editable fields.
type UpdateProfileRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
	PhotoID     *string `json:"photo_id"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID               string                  `json:"id"`
	Role             domain.Role             `json:"role"`
	Status           domain.UserStatus       `json:"status"`
	Name             string                  `json:"name"`
	Email            string                  `json:"email"`
	PhoneNumber      string                  `json:"phone_number"`
	PhotoID          *string                 `json:"photo_id"`
	RegistrationType domain.RegistrationType `json:"registration_type"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:               user.ID,
		Role:             user.Role,
		Status:           user.Status,
		Name:             user.Name,
		Email:            user.Email,
		PhoneNumber:      user.PhoneNumber,
		PhotoID:          user.PhotoID,
		RegistrationType: user.RegistrationType,
		CreatedAt:        user.CreatedAt,
		UpdatedAt:        user.UpdatedAt,
	}
}

// NewUserList maps a slice of users.
func NewUserList(users []domain.User) []UserResponse {
	items := make([]UserResponse, 0, len(users))
	for i := range users {
		items = append(items, NewUserResponse(&users[i]))
	}
	return items
}
