package profile

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/inferloop/reviewqa/pkg/constants"
	"github.com/inferloop/reviewqa/pkg/errors"
	"github.com/inferloop/reviewqa/pkg/models"
)

// DBConfig selects the profile database.
type DBConfig struct {
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`
	DSN    string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
	Debug  bool   `json:"debug" yaml:"debug" mapstructure:"debug"`
}

// Open connects to the configured database and migrates the profile table.
// Postgres connections go through lib/pq.
func Open(cfg DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case constants.ProfileDriverSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "profile.db"
		}
		dialector = sqlite.Open(dsn)
	case constants.ProfileDriverPostgres:
		if cfg.DSN == "" {
			return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "postgres profile database requires a dsn")
		}
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: cfg.DSN})
	default:
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, fmt.Sprintf("unsupported profile driver '%s'", cfg.Driver))
	}

	logMode := gormlogger.Silent
	if cfg.Debug {
		logMode = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(logMode)})
	if err != nil {
		return nil, errors.NewStorageConnectionError(cfg.Driver, "profile", err)
	}
	if _, ok := dialector.(*sqlite.Dialector); ok {
		// sqlite allows one writer; a single connection also keeps :memory: databases intact
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.NewStorageConnectionError(cfg.Driver, "profile", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&models.Profile{}); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, "MIGRATION_FAILED", "Failed to migrate profile table")
	}
	return db, nil
}

// GormRepository stores profiles in a relational table.
type GormRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewGormRepository wraps an open database
func NewGormRepository(db *gorm.DB, logger *logrus.Logger) *GormRepository {
	if logger == nil {
		logger = logrus.New()
	}
	return &GormRepository{db: db, logger: logger}
}

// Record implements interfaces.ProfileSink.
func (r *GormRepository) Record(ctx context.Context, p *models.Profile) error {
	return r.Add(ctx, p)
}

// Add inserts a profile
func (r *GormRepository) Add(ctx context.Context, p *models.Profile) error {
	if p == nil || p.ID == "" {
		return errors.NewValidationError(errors.CodeInvalidInput, "profile id is required")
	}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return errors.WrapStorageError(err, "add", "profile")
	}
	return nil
}

// Get returns the profile with id.
func (r *GormRepository) Get(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NewAppError(errors.ErrorTypeStorage, errors.CodeDataNotFound, fmt.Sprintf("profile '%s' not found", id))
	}
	if err != nil {
		return nil, errors.WrapStorageError(err, "get", "profile")
	}
	return &p, nil
}

// GetAll returns every profile ordered by start time.
func (r *GormRepository) GetAll(ctx context.Context) ([]models.Profile, error) {
	return r.find(ctx, "", nil)
}

// GetByProcess returns profiles of one stage or task name.
func (r *GormRepository) GetByProcess(ctx context.Context, processName string) ([]models.Profile, error) {
	return r.find(ctx, "process_name = ?", processName)
}

// GetByStage returns profiles recorded under a stage, the stage run included.
func (r *GormRepository) GetByStage(ctx context.Context, stage string) ([]models.Profile, error) {
	return r.find(ctx, "stage = ?", stage)
}

// Remove deletes one profile.
func (r *GormRepository) Remove(ctx context.Context, id string) error {
	return r.remove(ctx, "id = ?", id)
}

// RemoveByProcess deletes all profiles of a process.
func (r *GormRepository) RemoveByProcess(ctx context.Context, processName string) error {
	return r.remove(ctx, "process_name = ?", processName)
}

// RemoveByStage deletes all profiles of a stage.
func (r *GormRepository) RemoveByStage(ctx context.Context, stage string) error {
	return r.remove(ctx, "stage = ?", stage)
}

// RemoveBefore deletes profiles that started before t and reports how many.
func (r *GormRepository) RemoveBefore(ctx context.Context, t time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("start_time < ?", t).Delete(&models.Profile{})
	if res.Error != nil {
		return 0, errors.WrapStorageError(res.Error, "remove", "profile")
	}
	return res.RowsAffected, nil
}

// Count returns the number of stored profiles.
func (r *GormRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Profile{}).Count(&n).Error; err != nil {
		return 0, errors.WrapStorageError(err, "count", "profile")
	}
	return n, nil
}

func (r *GormRepository) find(ctx context.Context, where string, arg interface{}) ([]models.Profile, error) {
	var out []models.Profile
	q := r.db.WithContext(ctx).Order("start_time")
	if where != "" {
		q = q.Where(where, arg)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, errors.WrapStorageError(err, "get", "profile")
	}
	return out, nil
}

func (r *GormRepository) remove(ctx context.Context, where string, arg interface{}) error {
	res := r.db.WithContext(ctx).Where(where, arg).Delete(&models.Profile{})
	if res.Error != nil {
		return errors.WrapStorageError(res.Error, "remove", "profile")
	}
	r.logger.WithFields(logrus.Fields{"filter": where, "value": arg, "rows": res.RowsAffected}).Debug("Profiles removed")
	return nil
}
