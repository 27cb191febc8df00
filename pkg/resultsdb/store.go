// Package resultsdb mirrors completed trials into a MySQL database so a
// lab can query sessions across participants. The local CSV and
// checkpoint stay authoritative; a database failure never stops a run.
package resultsdb

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/runner"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

const defaultTimeout = 2 * time.Second

// Store writes sessions and trials through gorm.
type Store struct {
	db      *gorm.DB
	timeout time.Duration

	mu    sync.Mutex
	known map[string]bool // session IDs with a row
}

var _ runner.TrialSink = (*Store)(nil)

// Open connects to the database named by cfg.DSN and migrates the schema.
func Open(cfg config.ResultsDBConfig) (*Store, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, taskerrors.IOWrap(err, taskerrors.ErrResultsDBUnavailable, "cannot connect to the results database")
	}

	if err := db.AutoMigrate(&SessionRow{}, &TrialRow{}); err != nil {
		return nil, taskerrors.IOWrap(err, taskerrors.ErrResultsDBUnavailable, "results database migration failed")
	}

	log.Printf("[resultsdb] connected")
	return NewWithDB(db, cfg.Timeout), nil
}

// NewWithDB wraps an open connection without migrating.
func NewWithDB(db *gorm.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{db: db, timeout: timeout, known: make(map[string]bool)}
}

// Name identifies the sink in log lines.
func (st *Store) Name() string {
	return "resultsdb"
}

// SaveTrial writes one trial, creating the session row on first use.
// Rewriting a trial (after a resume) replaces the earlier row.
func (st *Store) SaveTrial(ctx context.Context, s *session.Session, spec *task.TrialSpec, r *session.TrialResult) error {
	ctx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()
	db := st.db.WithContext(ctx)

	if err := st.ensureSession(db, s); err != nil {
		return err
	}

	row := newTrialRow(s, spec, r)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "trial_index"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return taskerrors.IOWrap(err, taskerrors.ErrResultsDBUnavailable, "cannot write trial").
			WithContext("trial", strconv.Itoa(spec.Index))
	}
	return nil
}

func (st *Store) ensureSession(db *gorm.DB, s *session.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.known[s.ID] {
		return nil
	}

	row := newSessionRow(s)
	err := db.Where(SessionRow{SessionID: s.ID}).FirstOrCreate(row).Error
	if err != nil {
		return taskerrors.IOWrap(err, taskerrors.ErrResultsDBUnavailable, "cannot write session")
	}
	st.known[s.ID] = true
	return nil
}

// Finish records how the session ended.
func (st *Store) Finish(ctx context.Context, s *session.Session) error {
	ctx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()
	db := st.db.WithContext(ctx)

	if err := st.ensureSession(db, s); err != nil {
		return err
	}
	err := db.Model(&SessionRow{}).
		Where("session_id = ?", s.ID).
		Updates(outcomeColumns(s)).Error
	if err != nil {
		return taskerrors.IOWrap(err, taskerrors.ErrResultsDBUnavailable, "cannot update session")
	}
	return nil
}

// Close releases the connection pool.
func (st *Store) Close() error {
	sqlDB, err := st.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
