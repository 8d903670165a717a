package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/smilelog/smilelog-backend/internal/data/repos"
	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/platform/dbctx"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

// RecordService reads a patient's hygiene time series. Writes happen
// inside the processing pipeline, not here.
type RecordService interface {
	GetSeries(ctx context.Context, patientID uuid.UUID) (*domain.HygieneRecord, error)
}

type recordService struct {
	log     *logger.Logger
	records repos.HygieneRecordRepo
}

func NewRecordService(baseLog *logger.Logger, records repos.HygieneRecordRepo) RecordService {
	return &recordService{log: baseLog.With("service", "RecordService"), records: records}
}

func (s *recordService) GetSeries(ctx context.Context, patientID uuid.UUID) (*domain.HygieneRecord, error) {
	return s.records.GetSeries(dbctx.Context{Ctx: ctx}, patientID)
}
