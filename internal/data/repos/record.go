package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/platform/dbctx"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

type HygieneRecordRepo interface {
	// AppendEntry adds one point to the patient's series, creating the record
	// on first write. It is idempotent per assessment id and safe under
	// concurrent writers: both the record create and the entry insert are
	// ON CONFLICT DO NOTHING upserts, never read-modify-write.
	AppendEntry(dbc dbctx.Context, patientID uuid.UUID, entry *domain.HygieneRecordEntry) error

	// GetSeries returns the patient's entries sorted by date ascending
	// regardless of insertion order. Nil record means no entries yet.
	GetSeries(dbc dbctx.Context, patientID uuid.UUID) (*domain.HygieneRecord, error)
}

type hygieneRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHygieneRecordRepo(db *gorm.DB, baseLog *logger.Logger) HygieneRecordRepo {
	return &hygieneRecordRepo{db: db, log: baseLog.With("repo", "HygieneRecordRepo")}
}

func (r *hygieneRecordRepo) AppendEntry(dbc dbctx.Context, patientID uuid.UUID, entry *domain.HygieneRecordEntry) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if patientID == uuid.Nil || entry == nil || entry.AssessmentID == uuid.Nil {
		return ErrNotFound
	}

	rec := &domain.HygieneRecord{
		ID:        uuid.New(),
		PatientID: patientID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "patient_id"}},
			DoNothing: true,
		}).
		Create(rec).Error; err != nil {
		return err
	}

	// The insert above may have lost the conflict race; read back the row
	// that actually owns the patient id.
	var owned domain.HygieneRecord
	if err := t.WithContext(dbc.Ctx).
		Where("patient_id = ?", patientID).
		First(&owned).Error; err != nil {
		return err
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.RecordID = owned.ID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}, {Name: "assessment_id"}},
			DoNothing: true,
		}).
		Create(entry).Error; err != nil {
		return err
	}

	return t.WithContext(dbc.Ctx).
		Model(&domain.HygieneRecord{}).
		Where("id = ?", owned.ID).
		Update("updated_at", time.Now().UTC()).Error
}

func (r *hygieneRecordRepo) GetSeries(dbc dbctx.Context, patientID uuid.UUID) (*domain.HygieneRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if patientID == uuid.Nil {
		return nil, ErrNotFound
	}
	var out domain.HygieneRecord
	err := t.WithContext(dbc.Ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB {
			return db.Order("date ASC")
		}).
		Where("patient_id = ?", patientID).
		First(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
