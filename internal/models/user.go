package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                          uuid.UUID        `json:"id"`
	Email                       string           `json:"email"`
	PasswordHash                string           `json:"-"`
	FullName                    string           `json:"full_name"`
	AvatarURL                   *string          `json:"avatar_url"`
	Bio                         *string          `json:"bio"`
	Technologies                []UserTechnology `json:"technologies"`
	IsAvailableForCollaboration bool             `json:"is_available_for_collaboration"`
	LastSeenAt                  time.Time        `json:"last_seen_at"`
	CreatedAt                   time.Time        `json:"created_at"`
}

// UserTechnology is a technology a user earned through completed course work.
type UserTechnology struct {
	Name        string `json:"name"`
	Proficiency string `json:"proficiency"` // beginner | intermediate | advanced
}

// PublicProfile strips fields other learners should not see.
func (u *User) PublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":           u.ID,
		"full_name":    u.FullName,
		"avatar_url":   u.AvatarURL,
		"technologies": u.Technologies,
	}
}

type RegisterRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
