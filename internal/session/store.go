// internal/session/store.go

// Package session is the scoped persistent store that carries a pending
// login request across page loads. It is a single slot, not a queue: a
// second request overwrites the first, last write wins, and the flow that
// loaded the earlier snapshot keeps running on it until its next read.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-playground/validator/v10"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/pkonomy/sellerflow/api/schemas"
)

const pendingKey = "pending_login"

// Store is a badger-backed key-value session context.
type Store struct {
	db       *badger.DB
	validate *validator.Validate
	logger   *zap.Logger
}

// Open opens (or creates) the store at dir.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening session store at %s: %w", dir, err)
	}
	return &Store{
		db:       db,
		validate: validator.New(),
		logger:   logger.Named("session"),
	}, nil
}

// Close releases the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutPending stores req in the pending slot, replacing whatever is there.
func (s *Store) PutPending(_ context.Context, req *schemas.LoginRequest) error {
	if req == nil {
		return errors.New("session: nil login request")
	}
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid login request: %w", err)
	}
	if !req.Platform.Valid() {
		return fmt.Errorf("invalid login request: unknown platform %q", req.Platform)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(pendingKey), data)
	})
	if err != nil {
		return fmt.Errorf("writing pending request: %w", err)
	}
	s.logger.Debug("Pending login stored.", zap.String("platform", string(req.Platform)))
	return nil
}

// Pending returns the pending request, or (nil, nil) when the slot is empty.
func (s *Store) Pending(_ context.Context) (*schemas.LoginRequest, error) {
	var req *schemas.LoginRequest
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(pendingKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			req = &schemas.LoginRequest{}
			return json.Unmarshal(val, req)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading pending request: %w", err)
	}
	return req, nil
}

// ClearPending empties the slot. Clearing an already-empty slot is fine.
func (s *Store) ClearPending(_ context.Context) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(pendingKey))
	})
	if err != nil {
		return fmt.Errorf("clearing pending request: %w", err)
	}
	s.logger.Debug("Pending login cleared.")
	return nil
}

// UpdatePendingSecret rewrites the stored request's secret so a later step
// in the same flow (a second factor after a forced rotation) uses the
// rotated value. A missing slot is a no-op.
func (s *Store) UpdatePendingSecret(ctx context.Context, secret string) error {
	req, err := s.Pending(ctx)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}
	req.Secret = secret
	return s.PutPending(ctx, req)
}
