package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var auditBucket = []byte("audit_events")

// AuditStore persists audit entries in a bbolt database so security history
// survives restarts. Keys are nanosecond timestamps plus a UUID, which keeps
// bucket iteration in chronological order.
type AuditStore struct {
	db *bolt.DB
}

// OpenAuditStore opens or creates the audit database at path.
func OpenAuditStore(path string) (*AuditStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(auditBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit bucket: %w", err)
	}
	return &AuditStore{db: db}, nil
}

func (s *AuditStore) append(event AuditEvent, detail, remoteAddr string) error {
	entry := AuditEntry{
		ID:         uuid.NewString(),
		Event:      string(event),
		Detail:     detail,
		RemoteAddr: remoteAddr,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := []byte(fmt.Sprintf("%020d_%s", time.Now().UnixNano(), entry.ID))
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(auditBucket).Put(key, data)
	})
}

// list returns up to limit entries, newest first.
func (s *AuditStore) list(limit int) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(auditBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var entry AuditEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			entries = append(entries, entry)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *AuditStore) Close() error {
	return s.db.Close()
}
