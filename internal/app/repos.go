package app

import (
	"gorm.io/gorm"

	"github.com/smilelog/smilelog-backend/internal/data/repos"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

type Repos struct {
	User       repos.UserRepo
	Assessment repos.AssessmentRepo
	Record     repos.HygieneRecordRepo
	Duty       repos.DutyRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:       repos.NewUserRepo(db, log),
		Assessment: repos.NewAssessmentRepo(db, log),
		Record:     repos.NewHygieneRecordRepo(db, log),
		Duty:       repos.NewDutyRepo(db, log),
	}
}
