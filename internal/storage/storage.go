// Package storage provides the optional prediction audit log.
// It uses BoltDB as the underlying storage engine and keeps one record per
// successful prediction, keyed by time so recent history and time ranges are
// cheap cursor scans.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cancer-predictor/internal/ml"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	predictionsBucket = "predictions" // Bucket name for prediction audit records
	dbFileName        = "predictions.db"
	tsKeyWidth        = 20
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("audit store is closed")

// PredictionRecord is one persisted prediction. Raw feature values are not kept.
type PredictionRecord struct {
	ID             string           `json:"id"`
	Timestamp      time.Time        `json:"timestamp"`
	Diagnosis      string           `json:"diagnosis"`
	PredictionCode int              `json:"prediction_code"`
	Confidence     float64          `json:"confidence"`
	Probabilities  ml.Probabilities `json:"probabilities"`
	Advisories     int              `json:"advisories"`
	ModelVersion   string           `json:"model_version"`
}

// AuditMetrics is the subset of metrics the store reports to.
type AuditMetrics interface {
	AuditWritesInc()
	AuditFailuresInc()
}

// Store persists prediction audit records in BoltDB.
type Store struct {
	db      *bbolt.DB
	metrics AuditMetrics
}

// New opens (or creates) the audit database under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// SetMetrics attaches audit counters. Call before the store is shared.
func (s *Store) SetMetrics(m AuditMetrics) {
	s.metrics = m
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Audit implements ml.Auditor.
func (s *Store) Audit(result ml.Result, metadata ml.ModelMetadata) error {
	return s.RecordPrediction(PredictionRecord{
		ID:             uuid.NewString(),
		Timestamp:      result.Timestamp.Time(),
		Diagnosis:      string(result.Diagnosis),
		PredictionCode: result.PredictionCode,
		Confidence:     result.Confidence,
		Probabilities:  result.Probabilities,
		Advisories:     len(result.Advisories),
		ModelVersion:   metadata.Version,
	})
}

// RecordPrediction stores a record. A missing ID or timestamp is filled in.
func (s *Store) RecordPrediction(rec PredictionRecord) error {
	if s.db == nil {
		return ErrClosed
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal prediction record: %w", err)
		}
		return b.Put(recordKey(rec.Timestamp, rec.ID), data)
	})
	if s.metrics != nil {
		if err != nil {
			s.metrics.AuditFailuresInc()
		} else {
			s.metrics.AuditWritesInc()
		}
	}
	return err
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]PredictionRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return nil, nil
	}

	records := make([]PredictionRecord, 0, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// GetPredictionsInRange returns records with timestamps in [start, end], oldest first.
func (s *Store) GetPredictionsInRange(start, end time.Time) ([]PredictionRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	var records []PredictionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()

		startKey := tsPrefix(start)
		endKey := tsPrefix(end)

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k[:tsKeyWidth], endKey) <= 0; k, v = c.Next() {
			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(predictionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// recordKey sorts by time first; the ID keeps same-nanosecond records distinct.
func recordKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%0*d_%s", tsKeyWidth, ts.UnixNano(), id))
}

func tsPrefix(ts time.Time) []byte {
	return []byte(fmt.Sprintf("%0*d", tsKeyWidth, ts.UnixNano()))
}
