package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/codewandler/voicechat-go/conversation"
)

const (
	// MaxThreads caps the number of retained conversation threads.
	MaxThreads = 50
	// MaxItemsPerThread caps the items kept per thread; oldest go first.
	MaxItemsPerThread = 100
)

var bucketThreads = []byte("threads")

const keyThreads = "all"

// Thread is one completed conversation handed off by the orchestrator.
type Thread struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Items     []conversation.Item `json:"items"`
	Timestamp time.Time           `json:"timestamp"`
}

// Store retains a bounded, ordered set of threads across sessions. Newest
// threads sit at the front; overflow evicts from the back. The store is
// persisted to a single bbolt file and survives process restarts; a corrupt
// or unreadable file loads as empty rather than failing.
type Store struct {
	path    string
	db      *bolt.DB
	logger  *slog.Logger
	threads []Thread
}

// DefaultPath places the history database under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "voicechat", "history.db")
}

func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		// Another process holding the file lock is not corruption; the
		// data behind it is healthy and must survive.
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("history db locked: %w", err)
		}
		// A corrupt or unreadable store starts over empty, never fatal.
		logger.Warn("history db unreadable, resetting", slog.Any("err", err))
		_ = os.Remove(path)
		db, err = bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, fmt.Errorf("open history db: %w", err)
		}
	}

	s := &Store{path: path, db: db, logger: logger}
	s.load()
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// load reads the persisted thread list. Malformed data is dropped, not
// fatal: the store simply starts empty.
func (s *Store) load() {
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketThreads)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(keyThreads))
		if len(data) == 0 {
			return nil
		}
		var threads []Thread
		if err := json.Unmarshal(data, &threads); err != nil {
			s.logger.Warn("discarding corrupt history", slog.Any("err", err))
			return nil
		}
		s.threads = threads
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to load history, starting empty", slog.Any("err", err))
	}
}

// AddThread trims the thread to the per-thread cap, prepends it and evicts
// the oldest threads beyond the global cap.
func (s *Store) AddThread(thread Thread) {
	if n := len(thread.Items); n > MaxItemsPerThread {
		thread.Items = thread.Items[n-MaxItemsPerThread:]
	}
	s.threads = append([]Thread{thread}, s.threads...)
	if len(s.threads) > MaxThreads {
		s.threads = s.threads[:MaxThreads]
	}
	s.persist()
}

// DeleteThread removes the thread with the given id; absent ids are a no-op.
func (s *Store) DeleteThread(id string) {
	for i, t := range s.threads {
		if t.ID == id {
			s.threads = append(s.threads[:i], s.threads[i+1:]...)
			s.persist()
			return
		}
	}
}

// Threads returns the threads, newest first.
func (s *Store) Threads() []Thread {
	out := make([]Thread, len(s.threads))
	copy(out, s.threads)
	return out
}

func (s *Store) Len() int { return len(s.threads) }

// persist writes the full snapshot. On failure it clears the bucket and
// retries once; a second failure is logged and swallowed, never surfaced to
// the caller as a hard failure.
func (s *Store) persist() {
	if err := s.save(); err == nil {
		return
	} else {
		s.logger.Warn("history write failed, clearing and retrying", slog.Any("err", err))
	}
	if err := s.clear(); err != nil {
		s.logger.Error("history clear failed", slog.Any("err", err))
		return
	}
	if err := s.save(); err != nil {
		s.logger.Error("history write failed after clear", slog.Any("err", err))
	}
}

func (s *Store) save() error {
	data, err := json.Marshal(s.threads)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketThreads)
		if err != nil {
			return err
		}
		return b.Put([]byte(keyThreads), data)
	})
}

func (s *Store) clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketThreads) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketThreads)
	})
}
