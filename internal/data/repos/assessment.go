package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/platform/dbctx"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

// CompletionUpdate carries everything written at the single transition into
// completed: processed image keys for the images that succeeded, and the
// aggregated metrics.
type CompletionUpdate struct {
	ProcessedLeftKey    *string
	ProcessedFrontalKey *string
	ProcessedRightKey   *string

	PlaqueCoverage       float64
	GingivalInflammation float64
	Tartar               float64
	HygieneScore         float64

	AIComments *string
}

type AssessmentRepo interface {
	Create(dbc dbctx.Context, row *domain.Assessment) (*domain.Assessment, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Assessment, error)
	GetByPatient(dbc dbctx.Context, patientID uuid.UUID) ([]*domain.Assessment, error)

	// MarkProcessing moves pending -> processing. Any other starting state is
	// an invalid transition.
	MarkProcessing(dbc dbctx.Context, id uuid.UUID) error
	// Complete moves processing -> completed and writes the processed keys
	// and scores exactly once.
	Complete(dbc dbctx.Context, id uuid.UUID, upd CompletionUpdate) error
	// Fail moves processing -> failed with an error message.
	Fail(dbc dbctx.Context, id uuid.UUID, errorMessage string) error

	LinkDuty(dbc dbctx.Context, id uuid.UUID, dutyID uuid.UUID) error
	SetRecommendations(dbc dbctx.Context, id uuid.UUID, text string) error
}

type assessmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssessmentRepo(db *gorm.DB, baseLog *logger.Logger) AssessmentRepo {
	return &assessmentRepo{db: db, log: baseLog.With("repo", "AssessmentRepo")}
}

func (r *assessmentRepo) Create(dbc dbctx.Context, row *domain.Assessment) (*domain.Assessment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row.Status == "" {
		row.Status = domain.AssessmentStatusPending
	}
	if err := t.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *assessmentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Assessment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil, ErrNotFound
	}
	var out domain.Assessment
	err := t.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *assessmentRepo) GetByPatient(dbc dbctx.Context, patientID uuid.UUID) ([]*domain.Assessment, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*domain.Assessment
	if patientID == uuid.Nil {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// transition performs a guarded status update: the WHERE clause on the
// current status is what enforces monotonicity under concurrency.
func (r *assessmentRepo) transition(dbc dbctx.Context, id uuid.UUID, fromStatus string, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return ErrNotFound
	}
	updates["updated_at"] = time.Now().UTC()
	res := t.WithContext(dbc.Ctx).
		Model(&domain.Assessment{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := t.WithContext(dbc.Ctx).
			Model(&domain.Assessment{}).
			Where("id = ?", id).
			Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrInvalidStatusTransition
	}
	return nil
}

func (r *assessmentRepo) MarkProcessing(dbc dbctx.Context, id uuid.UUID) error {
	return r.transition(dbc, id, domain.AssessmentStatusPending, map[string]interface{}{
		"status": domain.AssessmentStatusProcessing,
	})
}

func (r *assessmentRepo) Complete(dbc dbctx.Context, id uuid.UUID, upd CompletionUpdate) error {
	return r.transition(dbc, id, domain.AssessmentStatusProcessing, map[string]interface{}{
		"status":                domain.AssessmentStatusCompleted,
		"processed_left_key":    upd.ProcessedLeftKey,
		"processed_frontal_key": upd.ProcessedFrontalKey,
		"processed_right_key":   upd.ProcessedRightKey,
		"plaque_coverage":       upd.PlaqueCoverage,
		"gingival_inflammation": upd.GingivalInflammation,
		"tartar":                upd.Tartar,
		"hygiene_score":         upd.HygieneScore,
		"ai_comments":           upd.AIComments,
	})
}

func (r *assessmentRepo) Fail(dbc dbctx.Context, id uuid.UUID, errorMessage string) error {
	return r.transition(dbc, id, domain.AssessmentStatusProcessing, map[string]interface{}{
		"status":        domain.AssessmentStatusFailed,
		"error_message": errorMessage,
	})
}

func (r *assessmentRepo) LinkDuty(dbc dbctx.Context, id uuid.UUID, dutyID uuid.UUID) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil || dutyID == uuid.Nil {
		return ErrNotFound
	}
	return t.WithContext(dbc.Ctx).
		Model(&domain.Assessment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"duty_id":    dutyID,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *assessmentRepo) SetRecommendations(dbc dbctx.Context, id uuid.UUID, text string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return ErrNotFound
	}
	return t.WithContext(dbc.Ctx).
		Model(&domain.Assessment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"ai_recommendations": text,
			"updated_at":         time.Now().UTC(),
		}).Error
}
