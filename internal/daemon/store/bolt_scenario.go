// internal/daemon/store/bolt_scenario.go
package store

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// CreateScenario creates a new scenario.
func (s *BoltStore) CreateScenario(ctx context.Context, scenario *Scenario) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScenarios)

		// Check if already exists
		if b.Get([]byte(scenario.Metadata.Name)) != nil {
			return &AlreadyExistsError{Resource: "scenario", Name: scenario.Metadata.Name}
		}

		// Set metadata
		now := time.Now()
		scenario.Metadata.Generation = 1
		scenario.Metadata.CreatedAt = now
		scenario.Metadata.UpdatedAt = now

		data, err := encode(scenario)
		if err != nil {
			return fmt.Errorf("failed to encode scenario: %w", err)
		}

		return b.Put([]byte(scenario.Metadata.Name), data)
	})
	if err != nil {
		return err
	}

	// Notify only after the transaction commits so a handler reading
	// the store sees the new record.
	s.notify(ResourceScenarios, "ADDED", scenario)
	return nil
}

// GetScenario retrieves a scenario by name.
func (s *BoltStore) GetScenario(ctx context.Context, name string) (*Scenario, error) {
	var scenario Scenario

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScenarios)
		data := b.Get([]byte(name))
		if data == nil {
			return &NotFoundError{Resource: "scenario", Name: name}
		}
		return decode(data, &scenario)
	})
	if err != nil {
		return nil, err
	}

	return &scenario, nil
}

// DeleteScenario deletes a scenario.
func (s *BoltStore) DeleteScenario(ctx context.Context, name string) error {
	var scenario *Scenario

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScenarios)

		data := b.Get([]byte(name))
		if data == nil {
			return &NotFoundError{Resource: "scenario", Name: name}
		}

		scenario = &Scenario{}
		if err := decode(data, scenario); err != nil {
			return err
		}

		return b.Delete([]byte(name))
	})
	if err != nil {
		return err
	}

	s.notify(ResourceScenarios, "DELETED", scenario)
	return nil
}

// ListScenarios returns all scenarios.
func (s *BoltStore) ListScenarios(ctx context.Context) ([]*Scenario, error) {
	var scenarios []*Scenario

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScenarios)
		return b.ForEach(func(k, v []byte) error {
			var scenario Scenario
			if err := decode(v, &scenario); err != nil {
				return err
			}
			scenarios = append(scenarios, &scenario)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return scenarios, nil
}
