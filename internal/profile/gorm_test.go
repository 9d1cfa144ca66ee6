package profile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/models"
)

type GormRepositorySuite struct {
	suite.Suite
	repo *GormRepository
	ctx  context.Context
}

func (s *GormRepositorySuite) SetupTest() {
	db, err := Open(DBConfig{Driver: constants.ProfileDriverSQLite, DSN: ":memory:"})
	s.Require().NoError(err)
	s.repo = NewGormRepository(db, quietLogger())
	s.ctx = context.Background()
}

func (s *GormRepositorySuite) TearDownTest() {
	sqlDB, err := s.repo.db.DB()
	s.Require().NoError(err)
	s.Require().NoError(sqlDB.Close())
}

func (s *GormRepositorySuite) add(processType, name, stage string, start time.Time) *models.Profile {
	p := &models.Profile{
		ID:          uuid.New().String(),
		RunID:       "run-1",
		ProcessType: processType,
		ProcessName: name,
		Stage:       stage,
		StartTime:   start,
		EndTime:     start.Add(time.Second),
		RowsIn:      10,
		RowsOut:     8,
		Status:      StatusSuccess,
	}
	s.Require().NoError(s.repo.Add(s.ctx, p))
	return p
}

func (s *GormRepositorySuite) TestAddAndGet() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := s.add(models.ProcessTypeStage, "clean", "clean", start)

	got, err := s.repo.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("clean", got.ProcessName)
	s.Equal(8, got.RowsOut)
	s.True(start.Equal(got.StartTime))
}

func (s *GormRepositorySuite) TestGetMissing() {
	_, err := s.repo.Get(s.ctx, "missing")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.CodeDataNotFound))
}

func (s *GormRepositorySuite) TestAddRequiresID() {
	s.Error(s.repo.Add(s.ctx, &models.Profile{ProcessName: "x"}))
}

func (s *GormRepositorySuite) TestQueries() {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.add(models.ProcessTypeStage, "clean", "clean", base.Add(2*time.Minute))
	s.add(models.ProcessTypeTask, "text_detect_regex", "clean", base.Add(time.Minute))
	s.add(models.ProcessTypeTask, "text_detect_regex", "enrich", base)
	s.add(models.ProcessTypeStage, "enrich", "enrich", base.Add(3*time.Minute))

	all, err := s.repo.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	s.Equal("enrich", all[0].Stage)
	s.Equal("enrich", all[3].ProcessName)

	byProcess, err := s.repo.GetByProcess(s.ctx, "text_detect_regex")
	s.Require().NoError(err)
	s.Len(byProcess, 2)

	byStage, err := s.repo.GetByStage(s.ctx, "clean")
	s.Require().NoError(err)
	s.Len(byStage, 2)

	n, err := s.repo.Count(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(4, n)
}

func (s *GormRepositorySuite) TestRemovals() {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := s.add(models.ProcessTypeStage, "clean", "clean", base)
	s.add(models.ProcessTypeTask, "sample", "ingest", base)
	s.add(models.ProcessTypeTask, "sample", "ingest", base)
	s.add(models.ProcessTypeTask, "review_age", "enrich", base)

	s.Require().NoError(s.repo.Remove(s.ctx, first.ID))
	s.Require().NoError(s.repo.RemoveByProcess(s.ctx, "sample"))
	n, err := s.repo.Count(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, n)

	s.Require().NoError(s.repo.RemoveByStage(s.ctx, "enrich"))
	n, err = s.repo.Count(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(0, n)
}

func (s *GormRepositorySuite) TestRemoveBefore() {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.add(models.ProcessTypeStage, "clean", "clean", base)
	s.add(models.ProcessTypeTask, "sample", "clean", base.Add(time.Hour))
	kept := s.add(models.ProcessTypeTask, "review_age", "enrich", base.Add(48*time.Hour))

	removed, err := s.repo.RemoveBefore(s.ctx, base.Add(24*time.Hour))
	s.Require().NoError(err)
	s.EqualValues(2, removed)

	all, err := s.repo.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal(kept.ID, all[0].ID)
}

func (s *GormRepositorySuite) TestRecordIsAdd() {
	p := &models.Profile{ID: uuid.New().String(), ProcessType: models.ProcessTypeTask, ProcessName: "t"}
	s.Require().NoError(s.repo.Record(s.ctx, p))
	_, err := s.repo.Get(s.ctx, p.ID)
	s.NoError(err)
}

func TestGormRepositorySuite(t *testing.T) {
	suite.Run(t, new(GormRepositorySuite))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(DBConfig{Driver: "oracle"})
	if err == nil || !errors.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	_, err = Open(DBConfig{Driver: constants.ProfileDriverPostgres})
	if err == nil || !errors.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
