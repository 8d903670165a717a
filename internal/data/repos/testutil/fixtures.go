package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/smilelog/smilelog-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email, role string) *domain.User {
	tb.Helper()
	u := &domain.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  "pw",
		FirstName: "A",
		LastName:  "B",
		Role:      role,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedAssessment(tb testing.TB, ctx context.Context, tx *gorm.DB, patientID uuid.UUID) *domain.Assessment {
	tb.Helper()
	a := &domain.Assessment{
		ID:              uuid.New(),
		PatientID:       patientID,
		LeftImageKey:    "uploads/" + patientID.String() + "/left.jpg",
		FrontalImageKey: "uploads/" + patientID.String() + "/front.jpg",
		RightImageKey:   "uploads/" + patientID.String() + "/right.jpg",
		Status:          domain.AssessmentStatusPending,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed assessment: %v", err)
	}
	return a
}
