package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/smilelog/smilelog-backend/internal/data/repos"
	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/platform/dbctx"
	"github.com/smilelog/smilelog-backend/internal/platform/gcp"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
	"github.com/smilelog/smilelog-backend/internal/platform/mlscore"
)

type fakeAssessmentRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.Assessment
}

func newFakeAssessmentRepo() *fakeAssessmentRepo {
	return &fakeAssessmentRepo{rows: map[uuid.UUID]*domain.Assessment{}}
}

func (f *fakeAssessmentRepo) Create(dbc dbctx.Context, row *domain.Assessment) (*domain.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.Status == "" {
		row.Status = domain.AssessmentStatusPending
	}
	cp := *row
	f.rows[row.ID] = &cp
	return row, nil
}

func (f *fakeAssessmentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, repos.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeAssessmentRepo) GetByPatient(dbc dbctx.Context, patientID uuid.UUID) ([]*domain.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Assessment
	for _, row := range f.rows {
		if row.PatientID == patientID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAssessmentRepo) transition(id uuid.UUID, from string, apply func(*domain.Assessment)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return repos.ErrNotFound
	}
	if row.Status != from {
		return repos.ErrInvalidStatusTransition
	}
	apply(row)
	return nil
}

func (f *fakeAssessmentRepo) MarkProcessing(dbc dbctx.Context, id uuid.UUID) error {
	return f.transition(id, domain.AssessmentStatusPending, func(a *domain.Assessment) {
		a.Status = domain.AssessmentStatusProcessing
	})
}

func (f *fakeAssessmentRepo) Complete(dbc dbctx.Context, id uuid.UUID, upd repos.CompletionUpdate) error {
	return f.transition(id, domain.AssessmentStatusProcessing, func(a *domain.Assessment) {
		a.Status = domain.AssessmentStatusCompleted
		a.ProcessedLeftKey = upd.ProcessedLeftKey
		a.ProcessedFrontalKey = upd.ProcessedFrontalKey
		a.ProcessedRightKey = upd.ProcessedRightKey
		a.PlaqueCoverage = &upd.PlaqueCoverage
		a.GingivalInflammation = &upd.GingivalInflammation
		a.Tartar = &upd.Tartar
		a.HygieneScore = &upd.HygieneScore
		a.AIComments = upd.AIComments
	})
}

func (f *fakeAssessmentRepo) Fail(dbc dbctx.Context, id uuid.UUID, errorMessage string) error {
	return f.transition(id, domain.AssessmentStatusProcessing, func(a *domain.Assessment) {
		a.Status = domain.AssessmentStatusFailed
		a.ErrorMessage = &errorMessage
	})
}

func (f *fakeAssessmentRepo) LinkDuty(dbc dbctx.Context, id uuid.UUID, dutyID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return repos.ErrNotFound
	}
	row.DutyID = &dutyID
	return nil
}

func (f *fakeAssessmentRepo) SetRecommendations(dbc dbctx.Context, id uuid.UUID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return repos.ErrNotFound
	}
	row.AIRecommendations = &text
	return nil
}

type fakeRecordRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]map[uuid.UUID]*domain.HygieneRecordEntry
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{entries: map[uuid.UUID]map[uuid.UUID]*domain.HygieneRecordEntry{}}
}

func (f *fakeRecordRepo) AppendEntry(dbc dbctx.Context, patientID uuid.UUID, entry *domain.HygieneRecordEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	byAssessment, ok := f.entries[patientID]
	if !ok {
		byAssessment = map[uuid.UUID]*domain.HygieneRecordEntry{}
		f.entries[patientID] = byAssessment
	}
	if _, dup := byAssessment[entry.AssessmentID]; dup {
		return nil
	}
	cp := *entry
	byAssessment[entry.AssessmentID] = &cp
	return nil
}

func (f *fakeRecordRepo) GetSeries(dbc dbctx.Context, patientID uuid.UUID) (*domain.HygieneRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byAssessment, ok := f.entries[patientID]
	if !ok {
		return nil, nil
	}
	rec := &domain.HygieneRecord{ID: uuid.New(), PatientID: patientID}
	for _, e := range byAssessment {
		rec.Entries = append(rec.Entries, *e)
	}
	return rec, nil
}

func (f *fakeRecordRepo) entryCount(patientID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries[patientID])
}

type fakeDutyRepo struct {
	mu          sync.Mutex
	lastScore   float64
	lastComment *string
	resultCalls int
}

func (f *fakeDutyRepo) UpsertForDay(dbc dbctx.Context, row *domain.Duty) (*domain.Duty, error) {
	return row, nil
}
func (f *fakeDutyRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Duty, error) {
	return nil, repos.ErrNotFound
}
func (f *fakeDutyRepo) ListByWorkerAndDay(dbc dbctx.Context, workerID uuid.UUID, day time.Time) ([]*domain.Duty, error) {
	return nil, nil
}
func (f *fakeDutyRepo) ListByFacilityAndDay(dbc dbctx.Context, facilityID uuid.UUID, day time.Time) ([]*domain.Duty, error) {
	return nil, nil
}
func (f *fakeDutyRepo) SetCompleted(dbc dbctx.Context, id uuid.UUID) error { return nil }
func (f *fakeDutyRepo) SetVerified(dbc dbctx.Context, id uuid.UUID) error  { return nil }
func (f *fakeDutyRepo) LinkAssessment(dbc dbctx.Context, id uuid.UUID, assessmentID uuid.UUID) error {
	return nil
}
func (f *fakeDutyRepo) SetAssessmentResult(dbc dbctx.Context, id uuid.UUID, hygieneScore float64, aiComments *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls++
	f.lastScore = hygieneScore
	f.lastComment = aiComments
	return nil
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (f *fakeBlobStore) Upload(ctx context.Context, key string, contentType string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = b
	return nil
}

func (f *fakeBlobStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gcp.ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeBlobStore) Attrs(ctx context.Context, key string) (*gcp.ObjectAttrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gcp.ErrObjectNotFound, key)
	}
	return &gcp.ObjectAttrs{Key: key, Size: int64(len(b))}, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

// fakeScorer routes each image to a per-slot result by filename.
type fakeScorer struct {
	results map[string]*mlscore.Result
	errs    map[string]error
}

func (f *fakeScorer) Score(ctx context.Context, imageBytes []byte, filename string) (*mlscore.Result, error) {
	if err, ok := f.errs[filename]; ok {
		return nil, err
	}
	res, ok := f.results[filename]
	if !ok {
		return nil, errors.New("no result configured for " + filename)
	}
	return res, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func seedAssessment(t *testing.T, assessments *fakeAssessmentRepo, blobs *fakeBlobStore, patientID uuid.UUID) *domain.Assessment {
	t.Helper()
	a := &domain.Assessment{
		ID:              uuid.New(),
		PatientID:       patientID,
		LeftImageKey:    "uploads/raw/left.jpg",
		FrontalImageKey: "uploads/raw/front.jpg",
		RightImageKey:   "uploads/raw/right.jpg",
		Status:          domain.AssessmentStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	if _, err := assessments.Create(dbctx.Context{Ctx: context.Background()}, a); err != nil {
		t.Fatalf("seed assessment: %v", err)
	}
	for _, key := range []string{a.LeftImageKey, a.FrontalImageKey, a.RightImageKey} {
		if err := blobs.Upload(context.Background(), key, "image/jpeg", bytes.NewReader([]byte("raw-"+key))); err != nil {
			t.Fatalf("seed blob %s: %v", key, err)
		}
	}
	return a
}

func TestPipelineCompletesWithAllImages(t *testing.T) {
	assessments := newFakeAssessmentRepo()
	records := newFakeRecordRepo()
	duties := &fakeDutyRepo{}
	blobs := newFakeBlobStore()
	patientID := uuid.New()
	a := seedAssessment(t, assessments, blobs, patientID)

	scorer := &fakeScorer{results: map[string]*mlscore.Result{
		"left.jpg":    {AnnotatedImage: []byte("ann-left"), HygieneScore: 80, PlaqueCoverage: 10, Inflammation: 20, Tartar: 5},
		"frontal.jpg": {AnnotatedImage: []byte("ann-front"), HygieneScore: 90, PlaqueCoverage: 20, Inflammation: 10, Tartar: 10, Comments: "Looks healthy."},
		"right.jpg":   {AnnotatedImage: []byte("ann-right"), HygieneScore: 70, PlaqueCoverage: 30, Inflammation: 30, Tartar: 15},
	}}

	svc := NewPipelineService(testLogger(t), assessments, records, duties, blobs, scorer)
	if err := svc.Process(context.Background(), a.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, err := assessments.GetByID(dbctx.Context{Ctx: context.Background()}, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.AssessmentStatusCompleted {
		t.Fatalf("status: want=%q got=%q", domain.AssessmentStatusCompleted, got.Status)
	}
	if got.HygieneScore == nil || *got.HygieneScore != 80 {
		t.Fatalf("hygiene score: want=80 got=%v", got.HygieneScore)
	}
	if got.PlaqueCoverage == nil || *got.PlaqueCoverage != 20 {
		t.Fatalf("plaque coverage: want=20 got=%v", got.PlaqueCoverage)
	}
	if got.AIComments == nil || *got.AIComments != "Looks healthy." {
		t.Fatalf("comments: want=%q got=%v", "Looks healthy.", got.AIComments)
	}
	for _, key := range []*string{got.ProcessedLeftKey, got.ProcessedFrontalKey, got.ProcessedRightKey} {
		if key == nil {
			t.Fatalf("processed key missing: %+v", got)
		}
		if !blobs.has(*key) {
			t.Fatalf("processed object %q not stored", *key)
		}
	}
	if n := records.entryCount(patientID); n != 1 {
		t.Fatalf("record entries: want=1 got=%d", n)
	}
}

func TestPipelinePartialFailureAveragesOverSuccesses(t *testing.T) {
	assessments := newFakeAssessmentRepo()
	records := newFakeRecordRepo()
	duties := &fakeDutyRepo{}
	blobs := newFakeBlobStore()
	patientID := uuid.New()
	a := seedAssessment(t, assessments, blobs, patientID)

	scorer := &fakeScorer{
		results: map[string]*mlscore.Result{
			"frontal.jpg": {AnnotatedImage: []byte("ann-front"), HygieneScore: 90, PlaqueCoverage: 20, Inflammation: 10, Tartar: 10, Comments: "Brush more."},
			"right.jpg":   {AnnotatedImage: []byte("ann-right"), HygieneScore: 70, PlaqueCoverage: 40, Inflammation: 30, Tartar: 20},
		},
		errs: map[string]error{"left.jpg": errors.New("model rejected image")},
	}

	svc := NewPipelineService(testLogger(t), assessments, records, duties, blobs, scorer)
	if err := svc.Process(context.Background(), a.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, err := assessments.GetByID(dbctx.Context{Ctx: context.Background()}, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.AssessmentStatusCompleted {
		t.Fatalf("status: want=%q got=%q", domain.AssessmentStatusCompleted, got.Status)
	}
	// Means divide by the success count (2), not by 3.
	if got.HygieneScore == nil || *got.HygieneScore != 80 {
		t.Fatalf("hygiene score: want=80 got=%v", got.HygieneScore)
	}
	if got.PlaqueCoverage == nil || *got.PlaqueCoverage != 30 {
		t.Fatalf("plaque coverage: want=30 got=%v", got.PlaqueCoverage)
	}
	if got.ProcessedLeftKey != nil {
		t.Fatalf("processed left key should be nil for a failed image, got %q", *got.ProcessedLeftKey)
	}
	if got.ProcessedFrontalKey == nil || got.ProcessedRightKey == nil {
		t.Fatalf("processed keys missing for succeeding images: %+v", got)
	}
	if got.AIComments == nil || !strings.Contains(*got.AIComments, "2 of 3 images processed") {
		t.Fatalf("comments should note the partial run, got %v", got.AIComments)
	}
	if !strings.Contains(*got.AIComments, "Brush more.") {
		t.Fatalf("comments should keep the frontal commentary, got %q", *got.AIComments)
	}
}

func TestPipelineAllImagesFailedMarksFailed(t *testing.T) {
	assessments := newFakeAssessmentRepo()
	records := newFakeRecordRepo()
	duties := &fakeDutyRepo{}
	blobs := newFakeBlobStore()
	patientID := uuid.New()
	a := seedAssessment(t, assessments, blobs, patientID)

	scorer := &fakeScorer{errs: map[string]error{
		"left.jpg":    errors.New("boom"),
		"frontal.jpg": errors.New("boom"),
		"right.jpg":   errors.New("boom"),
	}}

	svc := NewPipelineService(testLogger(t), assessments, records, duties, blobs, scorer)
	err := svc.Process(context.Background(), a.ID)
	if !errors.Is(err, ErrAllImagesFailed) {
		t.Fatalf("Process error: want ErrAllImagesFailed got %v", err)
	}

	got, gerr := assessments.GetByID(dbctx.Context{Ctx: context.Background()}, a.ID)
	if gerr != nil {
		t.Fatalf("GetByID: %v", gerr)
	}
	if got.Status != domain.AssessmentStatusFailed {
		t.Fatalf("status: want=%q got=%q", domain.AssessmentStatusFailed, got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage == "" {
		t.Fatalf("error message should be recorded, got %v", got.ErrorMessage)
	}
	if n := records.entryCount(patientID); n != 0 {
		t.Fatalf("failed run must not append history entries, got %d", n)
	}
}

func TestPipelineRejectsReprocessingTerminalAssessment(t *testing.T) {
	assessments := newFakeAssessmentRepo()
	records := newFakeRecordRepo()
	duties := &fakeDutyRepo{}
	blobs := newFakeBlobStore()
	patientID := uuid.New()
	a := seedAssessment(t, assessments, blobs, patientID)

	scorer := &fakeScorer{results: map[string]*mlscore.Result{
		"left.jpg":    {AnnotatedImage: []byte("x"), HygieneScore: 60},
		"frontal.jpg": {AnnotatedImage: []byte("x"), HygieneScore: 60},
		"right.jpg":   {AnnotatedImage: []byte("x"), HygieneScore: 60},
	}}

	svc := NewPipelineService(testLogger(t), assessments, records, duties, blobs, scorer)
	if err := svc.Process(context.Background(), a.ID); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	err := svc.Process(context.Background(), a.ID)
	if !errors.Is(err, repos.ErrInvalidStatusTransition) {
		t.Fatalf("second Process: want ErrInvalidStatusTransition got %v", err)
	}
	if n := records.entryCount(patientID); n != 1 {
		t.Fatalf("record entries after replay: want=1 got=%d", n)
	}
}

func TestPipelineMirrorsResultOntoLinkedDuty(t *testing.T) {
	assessments := newFakeAssessmentRepo()
	records := newFakeRecordRepo()
	duties := &fakeDutyRepo{}
	blobs := newFakeBlobStore()
	patientID := uuid.New()
	a := seedAssessment(t, assessments, blobs, patientID)

	dutyID := uuid.New()
	if err := assessments.LinkDuty(dbctx.Context{Ctx: context.Background()}, a.ID, dutyID); err != nil {
		t.Fatalf("LinkDuty: %v", err)
	}

	scorer := &fakeScorer{results: map[string]*mlscore.Result{
		"left.jpg":    {AnnotatedImage: []byte("x"), HygieneScore: 50},
		"frontal.jpg": {AnnotatedImage: []byte("x"), HygieneScore: 60, Comments: "ok"},
		"right.jpg":   {AnnotatedImage: []byte("x"), HygieneScore: 70},
	}}

	svc := NewPipelineService(testLogger(t), assessments, records, duties, blobs, scorer)
	if err := svc.Process(context.Background(), a.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if duties.resultCalls != 1 {
		t.Fatalf("duty result calls: want=1 got=%d", duties.resultCalls)
	}
	if duties.lastScore != 60 {
		t.Fatalf("duty hygiene score: want=60 got=%v", duties.lastScore)
	}
	if duties.lastComment == nil || *duties.lastComment != "ok" {
		t.Fatalf("duty comment: want=%q got=%v", "ok", duties.lastComment)
	}
}
