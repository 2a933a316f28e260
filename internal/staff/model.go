package staff

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleTherapist Role = "therapist"
	RoleDriver    Role = "driver"
	RoleOperator  Role = "operator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleTherapist, RoleDriver, RoleOperator:
		return true
	}
	return false
}

var (
	ErrStaffNotFound = errors.New("staff member not found")
	ErrInvalidRole   = errors.New("invalid staff role")
	ErrInactive      = errors.New("staff member is inactive")
)

type Staff struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Role            Role       `json:"role"`
	Specialization  *string    `json:"specialization,omitempty"`
	IsActive        bool       `json:"is_active"`
	LastAvailableAt *time.Time `json:"last_available_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Busy is only filled by availability reads: the member already holds an
	// appointment in a busy status on the date asked about.
	Busy bool `json:"busy,omitempty"`
}
