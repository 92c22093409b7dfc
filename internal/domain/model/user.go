package model

import (
	"strings"
	"time"

	"lms-billing/internal/domain"

	"github.com/google/uuid"
)

type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// IsStaff reports whether the role may act on other users' records.
func (r Role) IsStaff() bool { return r == RoleOwner || r == RoleAdmin }

// User is the account an entitlement belongs to. Profile data is owned by
// the wider platform; billing only writes GatewayCustomerID.
type User struct {
	ID                string
	Email             string
	FirstName         string
	LastName          string
	Role              Role
	GatewayCustomerID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewUser(id, email, firstName, lastName string, role Role) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidArgument
	}
	switch role {
	case RoleOwner, RoleAdmin, RoleStudent:
	case "":
		role = RoleStudent
	default:
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &User{
		ID:        id,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

// FullName joins first and last name, falling back to the email address.
func (u *User) FullName() string {
	n := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if n == "" {
		return u.Email
	}
	return n
}
