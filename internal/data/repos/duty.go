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

type DutyRepo interface {
	// UpsertForDay returns the duty for (patient, day), creating it if
	// absent. The unique index on (patient_id, date) prevents duplicates
	// under concurrent callers.
	UpsertForDay(dbc dbctx.Context, row *domain.Duty) (*domain.Duty, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Duty, error)
	ListByWorkerAndDay(dbc dbctx.Context, workerID uuid.UUID, day time.Time) ([]*domain.Duty, error)
	ListByFacilityAndDay(dbc dbctx.Context, facilityID uuid.UUID, day time.Time) ([]*domain.Duty, error)

	// SetCompleted flips completed to true; the flag is monotonic.
	SetCompleted(dbc dbctx.Context, id uuid.UUID) error
	// SetVerified flips verified to true, but only when completed already
	// is. A not-completed duty yields ErrDutyNotCompleted with no mutation.
	SetVerified(dbc dbctx.Context, id uuid.UUID) error

	LinkAssessment(dbc dbctx.Context, id uuid.UUID, assessmentID uuid.UUID) error
	// SetAssessmentResult mirrors the finished assessment's score and
	// commentary onto the duty.
	SetAssessmentResult(dbc dbctx.Context, id uuid.UUID, hygieneScore float64, aiComments *string) error
}

type dutyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDutyRepo(db *gorm.DB, baseLog *logger.Logger) DutyRepo {
	return &dutyRepo{db: db, log: baseLog.With("repo", "DutyRepo")}
}

func (r *dutyRepo) UpsertForDay(dbc dbctx.Context, row *domain.Duty) (*domain.Duty, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.PatientID == uuid.Nil {
		return nil, ErrNotFound
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.Date = domain.DayOf(row.Date)

	if err := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "patient_id"}, {Name: "date"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}

	var owned domain.Duty
	if err := t.WithContext(dbc.Ctx).
		Where("patient_id = ? AND date = ?", row.PatientID, row.Date).
		First(&owned).Error; err != nil {
		return nil, err
	}
	return &owned, nil
}

func (r *dutyRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Duty, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, ErrNotFound
	}
	var out domain.Duty
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *dutyRepo) ListByWorkerAndDay(dbc dbctx.Context, workerID uuid.UUID, day time.Time) ([]*domain.Duty, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Duty
	if workerID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("worker_id = ? AND date = ?", workerID, domain.DayOf(day)).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dutyRepo) ListByFacilityAndDay(dbc dbctx.Context, facilityID uuid.UUID, day time.Time) ([]*domain.Duty, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Duty
	if facilityID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("facility_id = ? AND date = ?", facilityID, domain.DayOf(day)).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dutyRepo) SetCompleted(dbc dbctx.Context, id uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return ErrNotFound
	}
	res := t.WithContext(dbc.Ctx).
		Model(&domain.Duty{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"completed":  true,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *dutyRepo) SetVerified(dbc dbctx.Context, id uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return ErrNotFound
	}
	// The completed guard rides in the WHERE clause so the precondition
	// holds even against a concurrent writer.
	res := t.WithContext(dbc.Ctx).
		Model(&domain.Duty{}).
		Where("id = ? AND completed = ?", id, true).
		Updates(map[string]interface{}{
			"verified":   true,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := t.WithContext(dbc.Ctx).
			Model(&domain.Duty{}).
			Where("id = ?", id).
			Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrDutyNotCompleted
	}
	return nil
}

func (r *dutyRepo) LinkAssessment(dbc dbctx.Context, id uuid.UUID, assessmentID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || assessmentID == uuid.Nil {
		return ErrNotFound
	}
	return t.WithContext(dbc.Ctx).
		Model(&domain.Duty{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"assessment_id": assessmentID,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *dutyRepo) SetAssessmentResult(dbc dbctx.Context, id uuid.UUID, hygieneScore float64, aiComments *string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return ErrNotFound
	}
	return t.WithContext(dbc.Ctx).
		Model(&domain.Duty{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"hygiene_score": hygieneScore,
			"ai_comments":   aiComments,
			"updated_at":    time.Now().UTC(),
		}).Error
}
