package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/harvestbot/harvester/internal/model"
	"gorm.io/gorm"
)

const importBatchSize = 2000

// ImportResult counts what one dump contributed.
type ImportResult struct {
	Sessions    int
	Skipped     int
	Ticks       int
	Assignments int
}

// ImportDump copies every session in a SQLite dump into m.DB. Sessions whose
// UUID already exists are skipped, so importing the same dump twice is harmless.
func (m *Manager) ImportDump(path string) (ImportResult, error) {
	var res ImportResult
	if m.DB == nil {
		return res, fmt.Errorf("db not connected")
	}

	src, err := GetSqliteDBStandalone(path)
	if err != nil {
		return res, fmt.Errorf("opening dump %s: %w", path, err)
	}
	if srcSQL, err := src.DB(); err == nil {
		defer srcSQL.Close()
	}

	var sessions []model.Session
	if err := src.Find(&sessions).Error; err != nil {
		return res, fmt.Errorf("reading sessions from %s: %w", path, err)
	}

	for _, s := range sessions {
		start := time.Now()
		imported, err := m.importSession(src, s)
		if err != nil {
			return res, fmt.Errorf("importing session %s: %w", s.UUID, err)
		}
		if imported == nil {
			res.Skipped++
			m.Logger.Info().Str("session", s.UUID).Msg("Session already imported, skipping")
			continue
		}
		res.Sessions++
		res.Ticks += imported.Ticks
		res.Assignments += imported.Assignments
		m.Logger.Info().
			Str("session", s.UUID).
			Int("ticks", imported.Ticks).
			Int("assignments", imported.Assignments).
			Dur("duration", time.Since(start)).
			Msg("Imported session")
	}
	return res, nil
}

func (m *Manager) importSession(src *gorm.DB, s model.Session) (*ImportResult, error) {
	var existing model.Session
	err := m.DB.Where("uuid = ?", s.UUID).First(&existing).Error
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	res := &ImportResult{}
	err = m.DB.Transaction(func(tx *gorm.DB) error {
		oldID := s.ID
		s.ID = 0
		if err := tx.Create(&s).Error; err != nil {
			return err
		}

		ticks, err := copyRows[model.Tick](src, tx, oldID, func(t *model.Tick) {
			t.ID = 0
			t.SessionID = s.ID
		})
		if err != nil {
			return fmt.Errorf("ticks: %w", err)
		}
		res.Ticks = ticks

		assignments, err := copyRows[model.Assignment](src, tx, oldID, func(a *model.Assignment) {
			a.ID = 0
			a.SessionID = s.ID
		})
		if err != nil {
			return fmt.Errorf("assignments: %w", err)
		}
		res.Assignments = assignments
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// copyRows streams one session's rows of M from src into dst in batches,
// letting remap rewrite keys before insertion.
func copyRows[M any](src, dst *gorm.DB, sessionID uint, remap func(*M)) (int, error) {
	var (
		batch []M
		total int
	)
	err := src.Where("session_id = ?", sessionID).Order("id ASC").
		FindInBatches(&batch, importBatchSize, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				remap(&batch[i])
			}
			if err := dst.Omit("Session").Create(&batch).Error; err != nil {
				return err
			}
			total += len(batch)
			return nil
		}).Error
	return total, err
}
