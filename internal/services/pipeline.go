package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smilelog/smilelog-backend/internal/data/repos"
	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/imaging"
	"github.com/smilelog/smilelog-backend/internal/platform/dbctx"
	"github.com/smilelog/smilelog-backend/internal/platform/gcp"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
	"github.com/smilelog/smilelog-backend/internal/platform/mlscore"
)

// ErrAllImagesFailed marks the one outright pipeline failure: no image at
// all produced a score.
var ErrAllImagesFailed = errors.New("all image processing failed")

// PipelineService runs the asynchronous half of an assessment: download the
// raw images, score each against the ML endpoint, aggregate whatever
// succeeded, persist the annotated outputs, and project the result onto the
// patient's history and the day's duty.
type PipelineService interface {
	// Process drives one assessment to a terminal state. Errors are
	// recorded on the assessment and also returned for the caller's log;
	// they must never be propagated to a request.
	Process(ctx context.Context, assessmentID uuid.UUID) error
}

type pipelineService struct {
	log *logger.Logger

	assessments repos.AssessmentRepo
	records     repos.HygieneRecordRepo
	duties      repos.DutyRepo

	blobs  gcp.BlobStore
	scorer mlscore.Scorer

	maxWidth int
	quality  int
}

func NewPipelineService(
	baseLog *logger.Logger,
	assessments repos.AssessmentRepo,
	records repos.HygieneRecordRepo,
	duties repos.DutyRepo,
	blobs gcp.BlobStore,
	scorer mlscore.Scorer,
) PipelineService {
	return &pipelineService{
		log:         baseLog.With("service", "PipelineService"),
		assessments: assessments,
		records:     records,
		duties:      duties,
		blobs:       blobs,
		scorer:      scorer,
		maxWidth:    imaging.DefaultMaxWidth,
		quality:     85,
	}
}

// slot names one of the three views of an assessment. The frontal slot is
// the designated source of commentary.
type slot struct {
	name   string
	rawKey string
}

type slotResult struct {
	res *mlscore.Result
	err error
}

func (s *pipelineService) Process(ctx context.Context, assessmentID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	log := s.log.With("assessment_id", assessmentID.String())

	a, err := s.assessments.GetByID(dbc, assessmentID)
	if err != nil {
		return fmt.Errorf("load assessment: %w", err)
	}

	// Processing is marked before any risky operation so a poller never
	// observes pending once dispatch has been attempted.
	if err := s.assessments.MarkProcessing(dbc, assessmentID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if err := s.run(ctx, log, a); err != nil {
		log.Error("assessment processing failed", "error", err)
		if failErr := s.assessments.Fail(dbc, assessmentID, err.Error()); failErr != nil {
			log.Error("could not record assessment failure", "error", failErr)
		}
		return err
	}
	log.Info("assessment processing completed")
	return nil
}

func (s *pipelineService) run(ctx context.Context, log *logger.Logger, a *domain.Assessment) error {
	dbc := dbctx.Context{Ctx: ctx}

	slots := []slot{
		{name: "left", rawKey: a.LeftImageKey},
		{name: "frontal", rawKey: a.FrontalImageKey},
		{name: "right", rawKey: a.RightImageKey},
	}

	// Stage the raw images to scratch files in parallel. A store failure
	// here fails the whole run.
	raw := make([][]byte, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	for i := range slots {
		i := i
		g.Go(func() error {
			b, err := s.stageDownload(gctx, slots[i].rawKey)
			if err != nil {
				return fmt.Errorf("download %s image: %w", slots[i].name, err)
			}
			raw[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Fan out to the scorer and wait for all three to settle. A failed
	// image must not abort its siblings: the aggregate is best-effort over
	// whatever succeeded.
	results := make([]slotResult, len(slots))
	var wg sync.WaitGroup
	for i := range slots {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.scorer.Score(ctx, raw[i], slots[i].name+".jpg")
			results[i] = slotResult{res: res, err: err}
			if err != nil {
				log.Warn("image scoring failed", "slot", slots[i].name, "error", err)
			}
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.err == nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		return ErrAllImagesFailed
	}
	if succeeded < len(slots) {
		log.Warn("continuing with partial results", "succeeded", succeeded, "total", len(slots))
	}

	// Persist the annotated outputs of the succeeding images in parallel.
	processedKeys := make([]*string, len(slots))
	g, gctx = errgroup.WithContext(ctx)
	for i := range slots {
		if results[i].err != nil {
			continue
		}
		i := i
		g.Go(func() error {
			key := processedKey(a, slots[i].name)
			optimized := imaging.Optimize(results[i].res.AnnotatedImage, s.maxWidth, s.quality)
			if err := s.blobs.Upload(gctx, key, "image/jpeg", bytes.NewReader(optimized)); err != nil {
				return fmt.Errorf("persist processed %s image: %w", slots[i].name, err)
			}
			processedKeys[i] = &key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Aggregate across the succeeding images only: the divisor is the
	// success count, so a 2-of-3 run still yields a valid average.
	var plaque, inflammation, tartar, hygiene float64
	for _, r := range results {
		if r.err != nil {
			continue
		}
		plaque += r.res.PlaqueCoverage
		inflammation += r.res.Inflammation
		tartar += r.res.Tartar
		hygiene += r.res.HygieneScore
	}
	n := float64(succeeded)
	plaque, inflammation, tartar, hygiene = plaque/n, inflammation/n, tartar/n, hygiene/n

	var comments *string
	if results[1].err == nil && results[1].res.Comments != "" {
		c := results[1].res.Comments
		comments = &c
	}
	if succeeded < len(slots) {
		note := fmt.Sprintf("%d of %d images processed", succeeded, len(slots))
		if comments != nil {
			joined := *comments + " (" + note + ")"
			comments = &joined
		} else {
			comments = &note
		}
	}

	upd := repos.CompletionUpdate{
		ProcessedLeftKey:     processedKeys[0],
		ProcessedFrontalKey:  processedKeys[1],
		ProcessedRightKey:    processedKeys[2],
		PlaqueCoverage:       plaque,
		GingivalInflammation: inflammation,
		Tartar:               tartar,
		HygieneScore:         hygiene,
		AIComments:           comments,
	}
	if err := s.assessments.Complete(dbc, a.ID, upd); err != nil {
		return fmt.Errorf("complete assessment: %w", err)
	}

	entry := &domain.HygieneRecordEntry{
		AssessmentID:         a.ID,
		Date:                 a.CreatedAt,
		PlaqueCoverage:       plaque,
		GingivalInflammation: inflammation,
		Tartar:               tartar,
		HygieneScore:         hygiene,
	}
	if err := s.records.AppendEntry(dbc, a.PatientID, entry); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}

	if a.DutyID != nil && *a.DutyID != uuid.Nil {
		if err := s.duties.SetAssessmentResult(dbc, *a.DutyID, hygiene, comments); err != nil {
			return fmt.Errorf("mirror result onto duty: %w", err)
		}
	}
	return nil
}

// stageDownload streams a blob into a scratch file and reads it back. The
// scratch directory is removed on every exit path.
func (s *pipelineService) stageDownload(ctx context.Context, key string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "smilelog-")
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.log.Warn("failed to clean up scratch directory", "dir", dir, "error", rmErr)
		}
	}()

	rc, err := s.blobs.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dst := filepath.Join(dir, "image.jpg")
	f, err := os.Create(dst)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return os.ReadFile(dst)
}

func processedKey(a *domain.Assessment, slotName string) string {
	return fmt.Sprintf("uploads/%s/%s/processed_%s.jpg", a.PatientID.String(), a.ID.String(), slotName)
}
