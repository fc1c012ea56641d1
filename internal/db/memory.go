package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/truck-inspection/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-process InspectionStore. Transactions are emulated by
// restoring a copy of the data when fn fails.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data memoryData
}

type memoryData struct {
	trucks      []models.Truck
	inspections []models.Inspection
	forms       []models.ChecklistForm
	items       []models.InspectionItem
	photos      []models.ItemPhoto
	signatures  []models.Signature
}

func (d memoryData) clone() memoryData {
	return memoryData{
		trucks:      append([]models.Truck(nil), d.trucks...),
		inspections: append([]models.Inspection(nil), d.inspections...),
		forms:       append([]models.ChecklistForm(nil), d.forms...),
		items:       append([]models.InspectionItem(nil), d.items...),
		photos:      append([]models.ItemPhoto(nil), d.photos...),
		signatures:  append([]models.Signature(nil), d.signatures...),
	}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	saved := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.data = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) InsertTruck(_ context.Context, truck models.Truck) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if truck.ID.IsZero() {
		truck.ID = primitive.NewObjectID()
	}
	truck.CreatedAt = time.Now()
	s.data.trucks = append(s.data.trucks, truck)
	return truck.ID, nil
}

func (s *MemoryStore) FindTruckByID(_ context.Context, id string) (*models.Truck, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid truck ID: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, truck := range s.data.trucks {
		if truck.ID == objectID {
			t := truck
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindTrucks(_ context.Context, ids []primitive.ObjectID) ([]models.Truck, error) {
	want := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Truck
	for _, truck := range s.data.trucks {
		if want[truck.ID] {
			out = append(out, truck)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindInspectionBySubmission(_ context.Context, submissionID string) (*models.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, in := range s.data.inspections {
		if submissionID != "" && in.SubmissionID == submissionID {
			found := in
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) InsertInspection(_ context.Context, inspection models.Inspection) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inspection.SubmissionID != "" {
		for _, in := range s.data.inspections {
			if in.SubmissionID == inspection.SubmissionID {
				return primitive.NilObjectID, fmt.Errorf("duplicate submission %s", inspection.SubmissionID)
			}
		}
	}
	if inspection.ID.IsZero() {
		inspection.ID = primitive.NewObjectID()
	}
	inspection.CreatedAt = time.Now()
	inspection.UpdatedAt = inspection.CreatedAt
	s.data.inspections = append(s.data.inspections, inspection)
	return inspection.ID, nil
}

func (s *MemoryStore) DiscardInspectionChildren(_ context.Context, inspectionID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := make(map[primitive.ObjectID]bool)
	items := s.data.items[:0:0]
	for _, item := range s.data.items {
		if item.InspectionID == inspectionID {
			dropped[item.ID] = true
			continue
		}
		items = append(items, item)
	}
	s.data.items = items

	photos := s.data.photos[:0:0]
	for _, p := range s.data.photos {
		if !dropped[p.InspectionItemID] {
			photos = append(photos, p)
		}
	}
	s.data.photos = photos

	forms := s.data.forms[:0:0]
	for _, f := range s.data.forms {
		if f.InspectionID != inspectionID {
			forms = append(forms, f)
		}
	}
	s.data.forms = forms

	signatures := s.data.signatures[:0:0]
	for _, sig := range s.data.signatures {
		if sig.InspectionID != inspectionID {
			signatures = append(signatures, sig)
		}
	}
	s.data.signatures = signatures
	return nil
}

func (s *MemoryStore) InsertChecklistForm(_ context.Context, form models.ChecklistForm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if form.ID.IsZero() {
		form.ID = primitive.NewObjectID()
	}
	form.CreatedAt = time.Now()
	s.data.forms = append(s.data.forms, form)
	return nil
}

func (s *MemoryStore) InsertItems(_ context.Context, items []models.InspectionItem) ([]primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]primitive.ObjectID, len(items))
	for i, item := range items {
		if item.ID.IsZero() {
			item.ID = primitive.NewObjectID()
		}
		ids[i] = item.ID
		s.data.items = append(s.data.items, item)
	}
	return ids, nil
}

func (s *MemoryStore) InsertPhotos(_ context.Context, photos []models.ItemPhoto) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, p := range photos {
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		p.CreatedAt = now
		s.data.photos = append(s.data.photos, p)
	}
	return nil
}

func (s *MemoryStore) InsertSignature(_ context.Context, signature models.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if signature.ID.IsZero() {
		signature.ID = primitive.NewObjectID()
	}
	signature.CreatedAt = time.Now()
	s.data.signatures = append(s.data.signatures, signature)
	return nil
}

func (s *MemoryStore) UpdateInspectionStatus(_ context.Context, id primitive.ObjectID, status models.InspectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.inspections {
		if s.data.inspections[i].ID == id {
			s.data.inspections[i].Status = status
			s.data.inspections[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) FindInspections(_ context.Context) ([]models.Inspection, error) {
	s.mu.RLock()
	out := append([]models.Inspection(nil), s.data.inspections...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].InspectionDate.After(out[j].InspectionDate)
	})
	return out, nil
}

func (s *MemoryStore) FindInspectionByID(_ context.Context, id string) (*models.Inspection, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid inspection ID: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, in := range s.data.inspections {
		if in.ID == objectID {
			found := in
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindItems(_ context.Context, q ItemQuery) ([]models.InspectionItem, error) {
	s.mu.RLock()
	var out []models.InspectionItem
	for _, item := range s.data.items {
		if q.InspectionID != nil && item.InspectionID != *q.InspectionID {
			continue
		}
		if q.Status != models.ItemUnevaluated && item.Status != q.Status {
			continue
		}
		out = append(out, item)
	}
	s.mu.RUnlock()

	if q.NewestFirst {
		sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	} else {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Category != out[j].Category {
				return out[i].Category < out[j].Category
			}
			return out[i].TemplateID < out[j].TemplateID
		})
	}
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) FindPhotos(_ context.Context, itemIDs []primitive.ObjectID) ([]models.ItemPhoto, error) {
	want := make(map[primitive.ObjectID]bool, len(itemIDs))
	for _, id := range itemIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ItemPhoto
	for _, p := range s.data.photos {
		if want[p.InspectionItemID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) FindSignature(_ context.Context, inspectionID primitive.ObjectID) (*models.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sig := range s.data.signatures {
		if sig.InspectionID == inspectionID {
			found := sig
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindChecklistForm(_ context.Context, inspectionID primitive.ObjectID) (*models.ChecklistForm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.data.forms {
		if f.InspectionID == inspectionID {
			found := f
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

// MemoryUserCollection is an in-process UserCollection.
type MemoryUserCollection struct {
	mu    sync.RWMutex
	users []models.User
}

func NewMemoryUserCollection() *MemoryUserCollection {
	return &MemoryUserCollection{}
}

func (c *MemoryUserCollection) InsertUser(_ context.Context, user models.User) (primitive.ObjectID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user.Email = normalizeEmail(user.Email)
	for _, u := range c.users {
		if u.Email == user.Email {
			return primitive.NilObjectID, fmt.Errorf("duplicate email %s", user.Email)
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	user.IsActive = true
	c.users = append(c.users, user)
	return user.ID, nil
}

func (c *MemoryUserCollection) FindUserByID(_ context.Context, id string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, u := range c.users {
		if u.ID == objectID {
			found := u
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (c *MemoryUserCollection) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, u := range c.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (c *MemoryUserCollection) UpdateUser(_ context.Context, id string, user models.User) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.users {
		if c.users[i].ID == objectID {
			user.ID = objectID
			user.Email = normalizeEmail(user.Email)
			user.UpdatedAt = time.Now()
			c.users[i] = user
			return nil
		}
	}
	return ErrNotFound
}

func (c *MemoryUserCollection) UpdateLastLogin(_ context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.users {
		if c.users[i].ID == objectID {
			now := time.Now()
			c.users[i].LastLogin = &now
			c.users[i].UpdatedAt = now
			return nil
		}
	}
	return ErrNotFound
}

var (
	_ InspectionStore = (*MemoryStore)(nil)
	_ InspectionStore = (*MongoStore)(nil)
	_ UserCollection  = (*MemoryUserCollection)(nil)
	_ UserCollection  = (*MongoUserCollection)(nil)
)
