package domain

import (
	"time"

	"github.com/google/uuid"
)

// Assessment lifecycle statuses. Transitions are monotonic:
// pending -> processing -> completed | failed. Terminal states are final.
const (
	AssessmentStatusPending    = "pending"
	AssessmentStatusProcessing = "processing"
	AssessmentStatusCompleted  = "completed"
	AssessmentStatusFailed     = "failed"
)

// Assessment is one upload event: three oral images and their processing
// outcome. The raw image keys are set atomically at creation and never
// change; processed keys and scores are written exactly once, at the
// transition into completed.
type Assessment struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	PatientID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"patient_id"`
	WorkerID   *uuid.UUID `gorm:"type:uuid;index" json:"worker_id,omitempty"`
	FacilityID *uuid.UUID `gorm:"type:uuid;index" json:"facility_id,omitempty"`

	LeftImageKey    string `gorm:"column:left_image_key;not null" json:"left_image_key"`
	FrontalImageKey string `gorm:"column:frontal_image_key;not null" json:"frontal_image_key"`
	RightImageKey   string `gorm:"column:right_image_key;not null" json:"right_image_key"`

	ProcessedLeftKey    *string `gorm:"column:processed_left_key" json:"processed_left_key,omitempty"`
	ProcessedFrontalKey *string `gorm:"column:processed_frontal_key" json:"processed_frontal_key,omitempty"`
	ProcessedRightKey   *string `gorm:"column:processed_right_key" json:"processed_right_key,omitempty"`

	Status       string  `gorm:"column:status;not null;default:'pending';index" json:"status"`
	ErrorMessage *string `gorm:"column:error_message" json:"error_message,omitempty"`

	PlaqueCoverage       *float64 `gorm:"column:plaque_coverage" json:"plaque_coverage,omitempty"`
	GingivalInflammation *float64 `gorm:"column:gingival_inflammation" json:"gingival_inflammation,omitempty"`
	Tartar               *float64 `gorm:"column:tartar" json:"tartar,omitempty"`
	HygieneScore         *float64 `gorm:"column:hygiene_score" json:"hygiene_score,omitempty"`

	AIComments        *string `gorm:"column:ai_comments" json:"ai_comments,omitempty"`
	AIRecommendations *string `gorm:"column:ai_recommendations" json:"ai_recommendations,omitempty"`

	DutyID *uuid.UUID `gorm:"type:uuid;index" json:"duty_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Assessment) TableName() string { return "assessment" }

// IsTerminalStatus reports whether s is a final lifecycle state.
func IsTerminalStatus(s string) bool {
	return s == AssessmentStatusCompleted || s == AssessmentStatusFailed
}
