package repos

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/smilelog/smilelog-backend/internal/data/repos/testutil"
	"github.com/smilelog/smilelog-backend/internal/domain"
	"github.com/smilelog/smilelog-backend/internal/platform/dbctx"
)

func strptr(s string) *string { return &s }

func TestAssessmentLifecycleTransitions(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewAssessmentRepo(db, testutil.Logger(t))
	patient := testutil.SeedUser(t, ctx, tx, "lifecycle-patient@test.local", domain.RolePatient)
	a := testutil.SeedAssessment(t, ctx, tx, patient.ID)

	if err := repo.MarkProcessing(dbc, a.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	got, err := repo.GetByID(dbc, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.AssessmentStatusProcessing {
		t.Fatalf("status: want=%q got=%q", domain.AssessmentStatusProcessing, got.Status)
	}

	upd := CompletionUpdate{
		ProcessedLeftKey:     strptr("processed/left.jpg"),
		ProcessedFrontalKey:  strptr("processed/front.jpg"),
		ProcessedRightKey:    strptr("processed/right.jpg"),
		PlaqueCoverage:       12.5,
		GingivalInflammation: 3,
		Tartar:               1,
		HygieneScore:         88,
		AIComments:           strptr("good"),
	}
	if err := repo.Complete(dbc, a.ID, upd); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err = repo.GetByID(dbc, a.ID)
	if err != nil {
		t.Fatalf("GetByID after complete: %v", err)
	}
	if got.Status != domain.AssessmentStatusCompleted {
		t.Fatalf("status: want=%q got=%q", domain.AssessmentStatusCompleted, got.Status)
	}
	if got.HygieneScore == nil || *got.HygieneScore != 88 {
		t.Fatalf("hygiene score: want=88 got=%v", got.HygieneScore)
	}
	if got.ProcessedFrontalKey == nil || *got.ProcessedFrontalKey != "processed/front.jpg" {
		t.Fatalf("processed frontal key: got %v", got.ProcessedFrontalKey)
	}
}

func TestAssessmentRejectsInvalidTransitions(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewAssessmentRepo(db, testutil.Logger(t))
	patient := testutil.SeedUser(t, ctx, tx, "transitions-patient@test.local", domain.RolePatient)
	a := testutil.SeedAssessment(t, ctx, tx, patient.ID)

	// pending cannot complete or fail outright.
	if err := repo.Complete(dbc, a.ID, CompletionUpdate{}); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("Complete from pending: want ErrInvalidStatusTransition got %v", err)
	}
	if err := repo.Fail(dbc, a.ID, "nope"); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("Fail from pending: want ErrInvalidStatusTransition got %v", err)
	}

	if err := repo.MarkProcessing(dbc, a.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	// processing cannot be marked processing twice.
	if err := repo.MarkProcessing(dbc, a.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("double MarkProcessing: want ErrInvalidStatusTransition got %v", err)
	}

	if err := repo.Fail(dbc, a.ID, "model down"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	// Terminal states never regress.
	if err := repo.MarkProcessing(dbc, a.ID); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("MarkProcessing after failed: want ErrInvalidStatusTransition got %v", err)
	}
	if err := repo.Complete(dbc, a.ID, CompletionUpdate{}); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("Complete after failed: want ErrInvalidStatusTransition got %v", err)
	}

	got, err := repo.GetByID(dbc, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.AssessmentStatusFailed {
		t.Fatalf("status: want=%q got=%q", domain.AssessmentStatusFailed, got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "model down" {
		t.Fatalf("error message: got %v", got.ErrorMessage)
	}
}

func TestAssessmentTransitionsOnMissingRow(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewAssessmentRepo(db, testutil.Logger(t))
	if err := repo.MarkProcessing(dbc, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MarkProcessing on missing row: want ErrNotFound got %v", err)
	}
	if _, err := repo.GetByID(dbc, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID on missing row: want ErrNotFound got %v", err)
	}
}

func TestAssessmentSetRecommendations(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewAssessmentRepo(db, testutil.Logger(t))
	patient := testutil.SeedUser(t, ctx, tx, "reco-patient@test.local", domain.RolePatient)
	a := testutil.SeedAssessment(t, ctx, tx, patient.ID)

	if err := repo.SetRecommendations(dbc, a.ID, "floss daily"); err != nil {
		t.Fatalf("SetRecommendations: %v", err)
	}
	got, err := repo.GetByID(dbc, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.AIRecommendations == nil || *got.AIRecommendations != "floss daily" {
		t.Fatalf("recommendations: got %v", got.AIRecommendations)
	}
}
