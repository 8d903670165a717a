package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// HygieneRecord is the per-patient historical time series, created lazily on
// the first completed assessment. The record only ever grows.
type HygieneRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PatientID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"patient_id"`

	Entries []HygieneRecordEntry `gorm:"foreignKey:RecordID;references:ID" json:"entries,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (HygieneRecord) TableName() string { return "hygiene_record" }

// HygieneRecordEntry is one immutable point in the series. The unique index
// on (record_id, assessment_id) is what makes AppendEntry idempotent per
// assessment and safe under concurrent writers.
type HygieneRecordEntry struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RecordID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_record_assessment" json:"record_id"`
	AssessmentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_record_assessment" json:"assessment_id"`

	Date time.Time `gorm:"column:date;not null;index" json:"date"`

	PlaqueCoverage       float64 `gorm:"column:plaque_coverage;not null" json:"plaque_coverage"`
	GingivalInflammation float64 `gorm:"column:gingival_inflammation;not null" json:"gingival_inflammation"`
	Tartar               float64 `gorm:"column:tartar;not null" json:"tartar"`
	HygieneScore         float64 `gorm:"column:hygiene_score;not null" json:"hygiene_score"`

	AdditionalMetrics datatypes.JSON `gorm:"column:additional_metrics;type:jsonb" json:"additional_metrics,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (HygieneRecordEntry) TableName() string { return "hygiene_record_entry" }
