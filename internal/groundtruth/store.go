package groundtruth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hyperjump/vecbench/internal/models"
)

// Store is a cache tier for ground-truth sets.
type Store interface {
	Get(ctx context.Context, key models.TruthKey) (*models.GroundTruthSet, bool, error)
	Put(ctx context.Context, gt *models.GroundTruthSet) error
	Close() error
}

type memoryStore struct {
	mu   sync.RWMutex
	sets map[models.TruthKey]*models.GroundTruthSet
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sets: make(map[models.TruthKey]*models.GroundTruthSet)}
}

func (m *memoryStore) Get(_ context.Context, key models.TruthKey) (*models.GroundTruthSet, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gt, ok := m.sets[key]
	return gt, ok, nil
}

func (m *memoryStore) Put(_ context.Context, gt *models.GroundTruthSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[gt.Key] = gt
	return nil
}

func (m *memoryStore) Close() error { return nil }

// BadgerStore persists ground-truth sets in BadgerDB, msgpack-encoded and
// zstd-compressed, keyed by the truth key.
type BadgerStore struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// BadgerStoreOptions configures the persistent cache.
type BadgerStoreOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string
	// InMemory runs BadgerDB without disk persistence. Useful in tests.
	InMemory bool
}

// NewBadgerStore opens or creates the persistent cache.
func NewBadgerStore(opts BadgerStoreOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("groundtruth: BadgerStoreOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open ground truth cache: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BadgerStore{db: db, enc: enc, dec: dec}, nil
}

func storeKey(key models.TruthKey) []byte {
	return []byte("truth:" + key.String())
}

// Get returns the cached set for key. A stored entry whose embedded key differs
// from the requested one is treated as a miss.
func (s *BadgerStore) Get(_ context.Context, key models.TruthKey) (*models.GroundTruthSet, bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	plain, err := s.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress ground truth: %w", err)
	}
	var gt models.GroundTruthSet
	if err := msgpack.NewDecoder(bytes.NewReader(plain)).Decode(&gt); err != nil {
		return nil, false, fmt.Errorf("decode ground truth: %w", err)
	}
	if gt.Key != key {
		return nil, false, nil
	}
	return &gt, true, nil
}

// Put stores gt under its key, replacing any previous entry.
func (s *BadgerStore) Put(_ context.Context, gt *models.GroundTruthSet) error {
	plain, err := msgpack.Marshal(gt)
	if err != nil {
		return fmt.Errorf("encode ground truth: %w", err)
	}
	val := s.enc.EncodeAll(plain, nil)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(gt.Key), val)
	})
}

// Close closes the database and codecs.
func (s *BadgerStore) Close() error {
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}
