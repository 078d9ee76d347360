// internal/daemon/store/bolt_run.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/squareslab/bugzood/internal/daemon/types"
	bolt "go.etcd.io/bbolt"
)

// CreateRun creates a new run.
func (s *BoltStore) CreateRun(ctx context.Context, run *Run) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)

		// Check if already exists
		if b.Get([]byte(run.Metadata.Name)) != nil {
			return &AlreadyExistsError{Resource: "run", Name: run.Metadata.Name}
		}

		// Set metadata
		now := time.Now()
		run.Metadata.Generation = 1
		run.Metadata.CreatedAt = now
		run.Metadata.UpdatedAt = now

		data, err := encode(run)
		if err != nil {
			return fmt.Errorf("failed to encode run: %w", err)
		}

		return b.Put([]byte(run.Metadata.Name), data)
	})
	if err != nil {
		return err
	}

	// Notify only after the transaction commits so a handler reading
	// the store sees the new record.
	s.notify(ResourceRuns, "ADDED", run)
	return nil
}

// GetRun retrieves a run by name.
func (s *BoltStore) GetRun(ctx context.Context, name string) (*Run, error) {
	var run Run

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get([]byte(name))
		if data == nil {
			return &NotFoundError{Resource: "run", Name: name}
		}
		return decode(data, &run)
	})
	if err != nil {
		return nil, err
	}

	return &run, nil
}

// UpdateRun updates an existing run.
func (s *BoltStore) UpdateRun(ctx context.Context, run *Run) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)

		// Get existing for conflict detection
		existing := b.Get([]byte(run.Metadata.Name))
		if existing == nil {
			return &NotFoundError{Resource: "run", Name: run.Metadata.Name}
		}

		var old types.Run
		if err := decode(existing, &old); err != nil {
			return fmt.Errorf("failed to decode existing run: %w", err)
		}

		// Optimistic concurrency check
		if old.Metadata.Generation != run.Metadata.Generation {
			return &ConflictError{
				Resource: "run",
				Name:     run.Metadata.Name,
				Message:  fmt.Sprintf("generation mismatch: expected %d, got %d", old.Metadata.Generation, run.Metadata.Generation),
			}
		}

		// Update metadata
		run.Metadata.Generation++
		run.Metadata.UpdatedAt = time.Now()

		data, err := encode(run)
		if err != nil {
			return fmt.Errorf("failed to encode run: %w", err)
		}

		return b.Put([]byte(run.Metadata.Name), data)
	})
	if err != nil {
		return err
	}

	s.notify(ResourceRuns, "MODIFIED", run)
	return nil
}

// DeleteRun deletes a run.
func (s *BoltStore) DeleteRun(ctx context.Context, name string) error {
	var run *Run

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)

		data := b.Get([]byte(name))
		if data == nil {
			return &NotFoundError{Resource: "run", Name: name}
		}

		run = &Run{}
		if err := decode(data, run); err != nil {
			return err
		}

		return b.Delete([]byte(name))
	})
	if err != nil {
		return err
	}

	s.notify(ResourceRuns, "DELETED", run)
	return nil
}

// ListRuns returns all runs.
func (s *BoltStore) ListRuns(ctx context.Context) ([]*Run, error) {
	var runs []*Run

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		return b.ForEach(func(k, v []byte) error {
			var run Run
			if err := decode(v, &run); err != nil {
				return err
			}
			runs = append(runs, &run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return runs, nil
}
