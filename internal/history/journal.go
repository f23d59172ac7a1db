package history

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	journalFile   = "launch.journal"
	countsBucket  = "launch_counts"
	lastBucket    = "last_launch"
	dbPermissions = 0o600
)

// Journal is a durable record of every launch, kept in a bbolt database
// alongside the JSON history tables. The JSON tables are the interface
// format; the journal exists so counts survive a corrupted or deleted
// table and can be rebuilt from it.
type Journal struct {
	db *bbolt.DB
}

// OpenJournal creates or opens the launch journal inside dataDir.
func OpenJournal(dataDir string) (*Journal, error) {
	path := filepath.Join(dataDir, journalFile)

	db, err := bbolt.Open(path, dbPermissions, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open launch journal: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{countsBucket, lastBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Record bumps the launch count for name and stamps its last-launch time.
func (j *Journal) Record(name string) error {
	now := time.Now().UnixNano()
	return j.db.Update(func(tx *bbolt.Tx) error {
		counts := tx.Bucket([]byte(countsBucket))
		if counts == nil {
			return fmt.Errorf("bucket %s not found", countsBucket)
		}

		var count uint64
		if val := counts.Get([]byte(name)); val != nil {
			count = binary.BigEndian.Uint64(val)
		}
		count++

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count)
		if err := counts.Put([]byte(name), buf); err != nil {
			return err
		}

		last := tx.Bucket([]byte(lastBucket))
		if last == nil {
			return fmt.Errorf("bucket %s not found", lastBucket)
		}
		tbuf := make([]byte, 8)
		binary.BigEndian.PutUint64(tbuf, uint64(now))
		return last.Put([]byte(name), tbuf)
	})
}

// Counts returns every recorded launch count.
func (j *Journal) Counts() map[string]uint64 {
	counts := make(map[string]uint64)
	j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(countsBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				counts[string(k)] = binary.BigEndian.Uint64(v)
			}
			return nil
		})
	})
	return counts
}

// LastLaunches returns the last recorded launch time per name.
func (j *Journal) LastLaunches() map[string]time.Time {
	out := make(map[string]time.Time)
	j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(lastBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				out[string(k)] = time.Unix(0, int64(binary.BigEndian.Uint64(v)))
			}
			return nil
		})
	})
	return out
}

// Close closes the journal database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
