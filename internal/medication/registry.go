package medication

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/store"
)

// Registry owns medication identity and schema validity. It never triggers
// reminder scheduling itself; callers reconcile the scheduler as a separate
// explicit step after every mutation.
type Registry struct {
	store  *store.Store
	logger *zap.Logger
	mu     sync.Mutex
}

// NewRegistry creates a new medication registry
func NewRegistry(st *store.Store, logger *zap.Logger) *Registry {
	return &Registry{store: st, logger: logger}
}

// Add validates and persists a new medication, assigning an id if absent.
func (r *Registry) Add(med Medication) (*Medication, error) {
	if err := med.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	meds, err := r.load()
	if err != nil {
		return nil, err
	}

	if med.ID == "" {
		med.ID = uuid.NewString()
	} else {
		for i := range meds {
			if meds[i].ID == med.ID {
				return nil, apperrors.Validation("medication id already exists: " + med.ID)
			}
		}
	}

	now := time.Now()
	med.CreatedAt = now
	med.UpdatedAt = now

	meds = append(meds, med)
	if err := r.save(meds); err != nil {
		return nil, err
	}

	r.logger.Info("Medication added",
		zap.String("medication_id", med.ID),
		zap.String("name", med.Name),
		zap.Int("dose_slots", len(med.Times)),
	)

	return med.clone(), nil
}

// Get returns a snapshot of one medication.
func (r *Registry) Get(id string) (*Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meds, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range meds {
		if meds[i].ID == id {
			return meds[i].clone(), nil
		}
	}
	return nil, apperrors.NotFound("medication", id)
}

// List returns snapshots of all medications in insertion order.
func (r *Registry) List() ([]Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meds, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]Medication, 0, len(meds))
	for i := range meds {
		out = append(out, *meds[i].clone())
	}
	return out, nil
}

// Update replaces the full record keyed by id.
func (r *Registry) Update(med Medication) (*Medication, error) {
	if err := med.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	meds, err := r.load()
	if err != nil {
		return nil, err
	}

	for i := range meds {
		if meds[i].ID == med.ID {
			med.CreatedAt = meds[i].CreatedAt
			med.UpdatedAt = time.Now()
			meds[i] = med
			if err := r.save(meds); err != nil {
				return nil, err
			}
			r.logger.Info("Medication updated", zap.String("medication_id", med.ID))
			return med.clone(), nil
		}
	}
	return nil, apperrors.NotFound("medication", med.ID)
}

// Remove deletes the record. Dose events referencing the id are left in
// place; the caller must cancel the medication's scheduled notifications.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	meds, err := r.load()
	if err != nil {
		return err
	}

	kept := meds[:0]
	found := false
	for i := range meds {
		if meds[i].ID == id {
			found = true
			continue
		}
		kept = append(kept, meds[i])
	}
	if !found {
		return apperrors.NotFound("medication", id)
	}

	if err := r.save(kept); err != nil {
		return err
	}
	r.logger.Info("Medication removed", zap.String("medication_id", id))
	return nil
}

// ClearAll wipes every medication. Used together with the ledger's clear
// for a full reset.
func (r *Registry) ClearAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save([]Medication{})
}

func (r *Registry) load() ([]Medication, error) {
	raw, err := r.store.Get(store.KeyMedications)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []Medication{}, nil
	}
	var meds []Medication
	if err := json.Unmarshal(raw, &meds); err != nil {
		return nil, apperrors.Persistence(err, "corrupt medications collection")
	}
	return meds, nil
}

func (r *Registry) save(meds []Medication) error {
	raw, err := json.Marshal(meds)
	if err != nil {
		return apperrors.Persistence(err, "failed to encode medications")
	}
	return r.store.Put(store.KeyMedications, raw)
}
