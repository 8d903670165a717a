package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/platform/dbctx"
)

// syncRunner executes tasks inline so tests observe their effects
// deterministically.
type syncRunner struct {
	submitted []string
}

func (r *syncRunner) Submit(name string, fn func(ctx context.Context) error) {
	r.submitted = append(r.submitted, name)
	_ = fn(context.Background())
}

func (r *syncRunner) Shutdown(ctx context.Context) {}

type noopPipeline struct {
	mu        sync.Mutex
	processed []uuid.UUID
}

func (p *noopPipeline) Process(ctx context.Context, assessmentID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, assessmentID)
	return nil
}

// failingBlobStore fails uploads whose key contains the trigger substring.
type failingBlobStore struct {
	*fakeBlobStore
	failOn string
}

func (f *failingBlobStore) Upload(ctx context.Context, key string, contentType string, r io.Reader) error {
	if strings.Contains(key, f.failOn) {
		return errors.New("simulated store outage")
	}
	return f.fakeBlobStore.Upload(ctx, key, contentType, r)
}

func TestCreateAssessmentPersistsRawsAndSubmitsPipeline(t *testing.T) {
	assessments := newFakeAssessmentRepo()
	duties := &fakeDutyRepo{}
	blobs := newFakeBlobStore()
	runner := &syncRunner{}
	pipeline := &noopPipeline{}

	svc := NewAssessmentService(testLogger(t), assessments, duties, blobs, pipeline, runner)
	patientID := uuid.New()
	a, err := svc.Create(context.Background(), CreateAssessmentInput{
		PatientID:    patientID,
		LeftImage:    []byte("left-bytes"),
		FrontalImage: []byte("front-bytes"),
		RightImage:   []byte("right-bytes"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.Status != domain.AssessmentStatusPending {
		t.Fatalf("status: want=%q got=%q", domain.AssessmentStatusPending, a.Status)
	}
	for _, key := range []string{a.LeftImageKey, a.FrontalImageKey, a.RightImageKey} {
		if key == "" {
			t.Fatalf("raw key missing on %+v", a)
		}
		if !blobs.has(key) {
			t.Fatalf("raw object %q not stored", key)
		}
	}
	if len(pipeline.processed) != 1 || pipeline.processed[0] != a.ID {
		t.Fatalf("pipeline submissions: want [%s] got %v", a.ID, pipeline.processed)
	}
	stored, err := assessments.GetByID(dbctx.Context{Ctx: context.Background()}, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.PatientID != patientID {
		t.Fatalf("patient id: want=%s got=%s", patientID, stored.PatientID)
	}
}

func TestCreateAssessmentRollsBackBlobsOnPartialFailure(t *testing.T) {
	assessments := newFakeAssessmentRepo()
	duties := &fakeDutyRepo{}
	inner := newFakeBlobStore()
	blobs := &failingBlobStore{fakeBlobStore: inner, failOn: "_right"}
	runner := &syncRunner{}
	pipeline := &noopPipeline{}

	svc := NewAssessmentService(testLogger(t), assessments, duties, blobs, pipeline, runner)
	_, err := svc.Create(context.Background(), CreateAssessmentInput{
		PatientID:    uuid.New(),
		LeftImage:    []byte("left-bytes"),
		FrontalImage: []byte("front-bytes"),
		RightImage:   []byte("right-bytes"),
	})
	if err == nil {
		t.Fatalf("expected a creation error when one raw write fails")
	}

	// Nothing may survive a failed creation: no blobs, no record, no task.
	inner.mu.Lock()
	leftover := len(inner.objects)
	inner.mu.Unlock()
	if leftover != 0 {
		t.Fatalf("orphaned blobs after failed creation: %d", leftover)
	}
	if len(assessments.rows) != 0 {
		t.Fatalf("assessment persisted despite failed creation")
	}
	if len(pipeline.processed) != 0 {
		t.Fatalf("pipeline submitted despite failed creation")
	}
}

func TestCreateAssessmentRequiresAllThreeImages(t *testing.T) {
	svc := NewAssessmentService(testLogger(t), newFakeAssessmentRepo(), &fakeDutyRepo{}, newFakeBlobStore(), &noopPipeline{}, &syncRunner{})
	_, err := svc.Create(context.Background(), CreateAssessmentInput{
		PatientID:    uuid.New(),
		LeftImage:    []byte("left"),
		FrontalImage: nil,
		RightImage:   []byte("right"),
	})
	if err == nil {
		t.Fatalf("expected an error when the frontal image is missing")
	}
	_, err = svc.Create(context.Background(), CreateAssessmentInput{
		LeftImage:    []byte("l"),
		FrontalImage: []byte("f"),
		RightImage:   []byte("r"),
	})
	if err == nil {
		t.Fatalf("expected an error when the patient id is missing")
	}
}
