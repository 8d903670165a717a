package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smilelog/smilelog-backend/internal/data/repos"
	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/imaging"
	"github.com/smilelog/smilelog-backend/internal/platform/dbctx"
	"github.com/smilelog/smilelog-backend/internal/platform/gcp"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

// CreateAssessmentInput carries one upload event: the subject plus exactly
// three raw images, already bounds-checked by the HTTP layer.
type CreateAssessmentInput struct {
	PatientID  uuid.UUID
	WorkerID   *uuid.UUID
	FacilityID *uuid.UUID

	LeftImage    []byte
	FrontalImage []byte
	RightImage   []byte
}

// AssessmentService owns the synchronous half of an upload: optimize and
// persist the raw images, create the assessment record atomically, attach
// the day's duty, and hand the rest to the background pipeline.
type AssessmentService interface {
	Create(ctx context.Context, in CreateAssessmentInput) (*domain.Assessment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Assessment, error)
	GetByPatient(ctx context.Context, patientID uuid.UUID) ([]*domain.Assessment, error)
}

type assessmentService struct {
	log *logger.Logger

	assessments repos.AssessmentRepo
	duties      repos.DutyRepo

	blobs    gcp.BlobStore
	pipeline PipelineService
	runner   TaskRunner

	maxWidth int
	quality  int
}

func NewAssessmentService(
	baseLog *logger.Logger,
	assessments repos.AssessmentRepo,
	duties repos.DutyRepo,
	blobs gcp.BlobStore,
	pipeline PipelineService,
	runner TaskRunner,
) AssessmentService {
	return &assessmentService{
		log:         baseLog.With("service", "AssessmentService"),
		assessments: assessments,
		duties:      duties,
		blobs:       blobs,
		pipeline:    pipeline,
		runner:      runner,
		maxWidth:    imaging.DefaultMaxWidth,
		quality:     imaging.DefaultQuality,
	}
}

func (s *assessmentService) Create(ctx context.Context, in CreateAssessmentInput) (*domain.Assessment, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("missing patient id")
	}
	if len(in.LeftImage) == 0 || len(in.FrontalImage) == 0 || len(in.RightImage) == 0 {
		return nil, fmt.Errorf("all three images are required (left profile, frontal, right profile)")
	}
	dbc := dbctx.Context{Ctx: ctx}

	now := time.Now().UTC()
	stamp := now.UnixNano()
	keys := [3]string{
		fmt.Sprintf("uploads/%s/%d_left.jpg", in.PatientID.String(), stamp),
		fmt.Sprintf("uploads/%s/%d_front.jpg", in.PatientID.String(), stamp),
		fmt.Sprintf("uploads/%s/%d_right.jpg", in.PatientID.String(), stamp),
	}
	images := [3][]byte{in.LeftImage, in.FrontalImage, in.RightImage}

	// Persist all three raws in parallel; this is the atomic creation
	// point. If any write fails the creation fails, the already-written
	// objects are removed and no record is persisted.
	written := make([]bool, 3)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 3; i++ {
		i := i
		g.Go(func() error {
			optimized := imaging.Optimize(images[i], s.maxWidth, s.quality)
			if err := s.blobs.Upload(gctx, keys[i], "image/jpeg", bytes.NewReader(optimized)); err != nil {
				return fmt.Errorf("persist raw image %q: %w", keys[i], err)
			}
			written[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i, ok := range written {
			if ok {
				if delErr := s.blobs.Delete(ctx, keys[i]); delErr != nil {
					s.log.Warn("could not remove orphaned raw image", "key", keys[i], "error", delErr)
				}
			}
		}
		return nil, err
	}

	a := &domain.Assessment{
		ID:              uuid.New(),
		PatientID:       in.PatientID,
		WorkerID:        in.WorkerID,
		FacilityID:      in.FacilityID,
		LeftImageKey:    keys[0],
		FrontalImageKey: keys[1],
		RightImageKey:   keys[2],
		Status:          domain.AssessmentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := s.assessments.Create(dbc, a); err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}

	// Upsert the day's duty and cross-link it. A duty failure does not
	// undo the accepted upload.
	duty, err := s.duties.UpsertForDay(dbc, &domain.Duty{
		PatientID:  in.PatientID,
		WorkerID:   in.WorkerID,
		FacilityID: in.FacilityID,
		Date:       now,
	})
	if err != nil {
		s.log.Warn("could not upsert duty for upload", "assessment_id", a.ID.String(), "error", err)
	} else {
		if err := s.duties.LinkAssessment(dbc, duty.ID, a.ID); err != nil {
			s.log.Warn("could not link assessment to duty", "duty_id", duty.ID.String(), "error", err)
		}
		if err := s.assessments.LinkDuty(dbc, a.ID, duty.ID); err != nil {
			s.log.Warn("could not link duty to assessment", "assessment_id", a.ID.String(), "error", err)
		} else {
			a.DutyID = &duty.ID
		}
	}

	// Accept fast, process later. The task owns its own error boundary.
	assessmentID := a.ID
	s.runner.Submit("assessment_process:"+assessmentID.String(), func(taskCtx context.Context) error {
		return s.pipeline.Process(taskCtx, assessmentID)
	})

	return a, nil
}

func (s *assessmentService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Assessment, error) {
	return s.assessments.GetByID(dbctx.Context{Ctx: ctx}, id)
}

func (s *assessmentService) GetByPatient(ctx context.Context, patientID uuid.UUID) ([]*domain.Assessment, error) {
	return s.assessments.GetByPatient(dbctx.Context{Ctx: ctx}, patientID)
}
