package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RolePatient  = "patient"
	RoleWorker   = "worker"
	RoleFacility = "facility"
	RoleDentist  = "dentist"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	FirstName string    `gorm:"column:first_name" json:"first_name"`
	LastName  string    `gorm:"column:last_name" json:"last_name"`
	Role      string    `gorm:"column:role;not null;index" json:"role"`

	// A worker belongs to a facility; a patient may be assigned a worker.
	FacilityID *uuid.UUID `gorm:"type:uuid;index" json:"facility_id,omitempty"`
	WorkerID   *uuid.UUID `gorm:"type:uuid;index" json:"worker_id,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "user" }
