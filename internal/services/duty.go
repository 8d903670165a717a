package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smilelog/smilelog-backend/internal/data/repos"
	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/platform/ctxutil"
	"github.com/smilelog/smilelog-backend/internal/platform/dbctx"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

// DutyService exposes the daily-duty workflow: workers mark a patient's
// duty completed, facility staff verify it afterwards.
type DutyService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Duty, error)
	ListForWorker(ctx context.Context, workerID uuid.UUID, day time.Time) ([]*domain.Duty, error)
	ListForFacility(ctx context.Context, facilityID uuid.UUID, day time.Time) ([]*domain.Duty, error)
	Complete(ctx context.Context, id uuid.UUID) (*domain.Duty, error)
	Verify(ctx context.Context, id uuid.UUID) (*domain.Duty, error)
}

type dutyService struct {
	log    *logger.Logger
	duties repos.DutyRepo
}

func NewDutyService(baseLog *logger.Logger, duties repos.DutyRepo) DutyService {
	return &dutyService{log: baseLog.With("service", "DutyService"), duties: duties}
}

func (s *dutyService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Duty, error) {
	return s.duties.GetByID(dbctx.Context{Ctx: ctx}, id)
}

func (s *dutyService) ListForWorker(ctx context.Context, workerID uuid.UUID, day time.Time) ([]*domain.Duty, error) {
	return s.duties.ListByWorkerAndDay(dbctx.Context{Ctx: ctx}, workerID, day)
}

func (s *dutyService) ListForFacility(ctx context.Context, facilityID uuid.UUID, day time.Time) ([]*domain.Duty, error) {
	return s.duties.ListByFacilityAndDay(dbctx.Context{Ctx: ctx}, facilityID, day)
}

func (s *dutyService) Complete(ctx context.Context, id uuid.UUID) (*domain.Duty, error) {
	dbc := dbctx.Context{Ctx: ctx}
	duty, err := s.duties.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWorker(ctx, duty); err != nil {
		return nil, err
	}
	if err := s.duties.SetCompleted(dbc, id); err != nil {
		return nil, err
	}
	return s.duties.GetByID(dbc, id)
}

func (s *dutyService) Verify(ctx context.Context, id uuid.UUID) (*domain.Duty, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if err := s.duties.SetVerified(dbc, id); err != nil {
		return nil, err
	}
	return s.duties.GetByID(dbc, id)
}

// authorizeWorker rejects completion attempts from a worker not assigned
// to the duty. Facility and dentist roles may complete any duty.
func (s *dutyService) authorizeWorker(ctx context.Context, duty *domain.Duty) error {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.Role != domain.RoleWorker {
		return nil
	}
	if duty.WorkerID == nil || rd.UserID == uuid.Nil || *duty.WorkerID != rd.UserID {
		return fmt.Errorf("duty %s is not assigned to this worker", duty.ID.String())
	}
	return nil
}
