// Package storage provides persistent storage for the loan decision
// service. It uses BoltDB to keep a ledger of every scored application
// (probability, decision, protected-group labels, and the eventual
// ground-truth outcome when reported), which feeds offline fairness
// audits. Audit reports themselves are archived in a separate bucket.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	decisionsBucket = "decisions" // Bucket for scored applications
	auditsBucket    = "audits"    // Bucket for archived audit reports
)

// DecisionRecord is one scored application as persisted in the ledger.
type DecisionRecord struct {
	ApplicantID string            `json:"applicant_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Probability float64           `json:"probability"`
	Class       int               `json:"class"`
	Label       string            `json:"label"`
	Confidence  float64           `json:"confidence"`
	Reason      string            `json:"reason"`
	Groups      map[string]string `json:"groups,omitempty"`
	Outcome     *int              `json:"outcome,omitempty"`
}

// Store provides persistent storage using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath and ensures the
// buckets exist.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "lendguard.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(decisionsBucket)); err != nil {
			return fmt.Errorf("create decisions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(auditsBucket)); err != nil {
			return fmt.Errorf("create audits bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreDecision appends a scored application to the ledger. Keys are
// "applicantID_timestamp" so an applicant's history stays contiguous.
func (s *Store) StoreDecision(rec DecisionRecord) error {
	if rec.ApplicantID == "" {
		return fmt.Errorf("decision record requires an applicant id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(decisionsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal decision record: %w", err)
		}

		key := fmt.Sprintf("%s_%d", rec.ApplicantID, rec.Timestamp.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// SetOutcome attaches the ground-truth outcome to an applicant's most
// recent decision. Returns an error when the applicant has no recorded
// decision.
func (s *Store) SetOutcome(applicantID string, outcome int) error {
	if outcome != 0 && outcome != 1 {
		return fmt.Errorf("outcome %d is not binary", outcome)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(decisionsBucket))
		c := b.Cursor()
		prefix := []byte(applicantID + "_")

		var lastKey, lastVal []byte
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			lastKey, lastVal = k, v
		}
		if lastKey == nil {
			return fmt.Errorf("no decision recorded for applicant %s", applicantID)
		}

		var rec DecisionRecord
		if err := json.Unmarshal(lastVal, &rec); err != nil {
			return fmt.Errorf("unmarshal decision record: %w", err)
		}
		rec.Outcome = &outcome

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal decision record: %w", err)
		}
		return b.Put(lastKey, data)
	})
}

// DecisionsInRange returns all ledger records with timestamps in
// [start, end], across applicants.
func (s *Store) DecisionsInRange(start, end time.Time) ([]DecisionRecord, error) {
	var records []DecisionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(decisionsBucket))
		return b.ForEach(func(k, v []byte) error {
			var rec DecisionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt decision record %s: %w", k, err)
			}
			if !rec.Timestamp.Before(start) && !rec.Timestamp.After(end) {
				records = append(records, rec)
			}
			return nil
		})
	})
	return records, err
}

// DecisionsForApplicant returns an applicant's full history, oldest
// first.
func (s *Store) DecisionsForApplicant(applicantID string) ([]DecisionRecord, error) {
	var records []DecisionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(decisionsBucket))
		c := b.Cursor()
		prefix := []byte(applicantID + "_")

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec DecisionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt decision record %s: %w", k, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// StoreAuditReport archives a serialized audit report under its run
// timestamp.
func (s *Store) StoreAuditReport(ranAt time.Time, report []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(auditsBucket))
		key := fmt.Sprintf("%d", ranAt.UnixNano())
		return b.Put([]byte(key), report)
	})
}

// LatestAuditReport returns the most recently archived report, or nil
// when none exists.
func (s *Store) LatestAuditReport() ([]byte, error) {
	var report []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(auditsBucket)).Cursor()
		if _, v := c.Last(); v != nil {
			report = append([]byte(nil), v...)
		}
		return nil
	})
	return report, err
}
