package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ukydev/truck-inspection/internal/models"
)

// DefaultPrefix is prepended to every key written by a Store.
const DefaultPrefix = "draft"

// DefaultNamespace is used when a client does not identify its device.
const DefaultNamespace = "default"

// Well-known keys shared by every session of a device.
const (
	TimerKey        = "inspection_timer"
	PhotoRequestKey = "current_photo_item"
	PhotosKey       = "last_photos"
)

// FormKey addresses the identification form of a vehicle.
func FormKey(vehicleID string) string {
	return "checklistForm_" + vehicleID
}

// ChecklistKey addresses the item list of one category of a vehicle.
func ChecklistKey(vehicleID, categoryID string) string {
	return "checklist_" + vehicleID + "_" + categoryID
}

// SubmissionKey addresses the submission id reused across retries.
func SubmissionKey(vehicleID string) string {
	return "submission_" + vehicleID
}

// Store is a typed repository over a Backend, scoped to one device.
type Store struct {
	backend   Backend
	prefix    string
	namespace string
}

// NewStore wraps backend. An empty prefix falls back to DefaultPrefix.
func NewStore(backend Backend, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{backend: backend, prefix: prefix, namespace: DefaultNamespace}
}

// Scope returns a Store writing under another device namespace.
func (s *Store) Scope(namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{backend: s.backend, prefix: s.prefix, namespace: namespace}
}

// Namespace returns the device namespace of the store.
func (s *Store) Namespace() string { return s.namespace }

func (s *Store) fullKey(key string) string {
	return s.prefix + ":" + s.namespace + ":" + key
}

// Load decodes the value under key into v. It reports false when the key
// is absent.
func (s *Store) Load(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.backend.Get(ctx, s.fullKey(key))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "load", Key: key, Err: err}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, &StorageError{Op: "decode", Key: key, Err: err}
	}
	return true, nil
}

// Save serializes v and overwrites key.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode draft %q: %w", key, err)
	}
	if err := s.backend.Set(ctx, s.fullKey(key), raw); err != nil {
		return &StorageError{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, s.fullKey(key)); err != nil && !errors.Is(err, ErrNotFound) {
		return &StorageError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

func (s *Store) LoadForm(ctx context.Context, vehicleID string) (models.FormData, bool, error) {
	var form models.FormData
	found, err := s.Load(ctx, FormKey(vehicleID), &form)
	return form, found, err
}

func (s *Store) SaveForm(ctx context.Context, vehicleID string, form models.FormData) error {
	return s.Save(ctx, FormKey(vehicleID), form)
}

func (s *Store) LoadChecklist(ctx context.Context, vehicleID, categoryID string) ([]models.ChecklistItem, bool, error) {
	var items []models.ChecklistItem
	found, err := s.Load(ctx, ChecklistKey(vehicleID, categoryID), &items)
	return items, found, err
}

func (s *Store) SaveChecklist(ctx context.Context, vehicleID, categoryID string, items []models.ChecklistItem) error {
	return s.Save(ctx, ChecklistKey(vehicleID, categoryID), items)
}

// SubmissionID returns the stored submission id of a vehicle, or "".
func (s *Store) SubmissionID(ctx context.Context, vehicleID string) (string, error) {
	var id string
	_, err := s.Load(ctx, SubmissionKey(vehicleID), &id)
	return id, err
}

func (s *Store) SaveSubmissionID(ctx context.Context, vehicleID, submissionID string) error {
	return s.Save(ctx, SubmissionKey(vehicleID), submissionID)
}

// ClearVehicle removes the form, every listed category and the submission id
// of a vehicle. It attempts every key and joins the failures.
func (s *Store) ClearVehicle(ctx context.Context, vehicleID string, categoryIDs []string) error {
	keys := make([]string, 0, len(categoryIDs)+2)
	keys = append(keys, FormKey(vehicleID))
	for _, id := range categoryIDs {
		keys = append(keys, ChecklistKey(vehicleID, id))
	}
	keys = append(keys, SubmissionKey(vehicleID))

	var errs []error
	for _, k := range keys {
		if err := s.Remove(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
