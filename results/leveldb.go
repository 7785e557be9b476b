package results

import (
	"context"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/ethereum-optimism/infra/op-explorer/types"
)

type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates a database in dir.
func OpenLevelDB(dir string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %s", dir)
	}
	return &LevelDBStore{db: db}, nil
}

// NewLevelDBStore wraps an existing storage, e.g. storage.NewMemStorage().
func NewLevelDBStore(stor storage.Storage) (*LevelDBStore, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening leveldb")
	}
	return &LevelDBStore{db: db}, nil
}

func (l *LevelDBStore) Get(_ context.Context, key string) (*types.TestResult, error) {
	b, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading result %s", key)
	}
	return decodeResult(b)
}

func (l *LevelDBStore) Put(_ context.Context, key string, r *types.TestResult) error {
	b, err := encodeResult(r)
	if err != nil {
		return err
	}
	return errors.Wrapf(l.db.Put([]byte(key), b, nil), "writing result %s", key)
}

func (l *LevelDBStore) Close() error {
	return l.db.Close()
}
