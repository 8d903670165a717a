package domain

import (
	"time"

	"github.com/google/uuid"
)

// Duty is the per-patient-per-day care record. The unique index on
// (patient_id, date) makes creation an upsert; the completed and verified
// flags only ever move false -> true, and verified requires completed.
type Duty struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PatientID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_duty_patient_date;index:idx_duty_patient" json:"patient_id"`
	WorkerID   *uuid.UUID `gorm:"type:uuid;index" json:"worker_id,omitempty"`
	FacilityID *uuid.UUID `gorm:"type:uuid;index" json:"facility_id,omitempty"`

	// Start of calendar day, UTC.
	Date time.Time `gorm:"column:date;not null;uniqueIndex:idx_duty_patient_date;index" json:"date"`

	Completed bool `gorm:"column:completed;not null;default:false" json:"completed"`
	Verified  bool `gorm:"column:verified;not null;default:false" json:"verified"`

	HygieneScore *float64 `gorm:"column:hygiene_score" json:"hygiene_score,omitempty"`
	AIComments   *string  `gorm:"column:ai_comments" json:"ai_comments,omitempty"`

	AssessmentID *uuid.UUID `gorm:"type:uuid;index" json:"assessment_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Duty) TableName() string { return "duty" }

// DayOf truncates t to the start of its UTC calendar day, the granularity
// duties are keyed on.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
