// Package session implements the inspection wizard over the draft store:
// identification form, per-category checklists, photo relay and submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/truck-inspection/internal/catalog"
	"github.com/ukydev/truck-inspection/internal/classify"
	"github.com/ukydev/truck-inspection/internal/db"
	"github.com/ukydev/truck-inspection/internal/draft"
	"github.com/ukydev/truck-inspection/internal/models"
	"github.com/ukydev/truck-inspection/internal/relay"
	"github.com/ukydev/truck-inspection/internal/submission"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrInvalidVehicle   = errors.New("invalid vehicle id")
	ErrNoDraft          = errors.New("no draft for this vehicle")
	ErrUnknownItem      = errors.New("item does not belong to this category")
	ErrInvalidUpdate    = errors.New("invalid item update")
	ErrInvalidPhoto     = errors.New("photos must be image data URIs")
	ErrNoPendingRequest = errors.New("no photo request is pending")
	ErrPhotoIndex       = errors.New("photo index out of range")
)

// Service creates device-scoped sessions.
type Service struct {
	trucks   db.TruckCollection
	drafts   *draft.Store
	catalog  *catalog.Catalog
	pipeline *submission.Pipeline
	now      func() time.Time
}

func NewService(trucks db.TruckCollection, drafts *draft.Store, cat *catalog.Catalog, pipeline *submission.Pipeline) *Service {
	return &Service{trucks: trucks, drafts: drafts, catalog: cat, pipeline: pipeline, now: time.Now}
}

// Catalog returns the catalog the sessions are seeded from.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Device returns the session view of one device's drafts.
func (s *Service) Device(deviceID string) *Session {
	drafts := s.drafts.Scope(deviceID)
	return &Session{svc: s, drafts: drafts, relay: relay.New(drafts)}
}

// Session operates on the drafts of a single device. Writes are last-write-wins.
type Session struct {
	svc    *Service
	drafts *draft.Store
	relay  *relay.Relay
}

// Drafts exposes the device's draft store, shared with its timer.
func (s *Session) Drafts() *draft.Store { return s.drafts }

// notes collects non-fatal storage failures.
type notes []string

func (n *notes) storage(err error, fields log.Fields) {
	if err == nil {
		return
	}
	log.WithError(err).WithFields(fields).Warn("draft storage failure")
	*n = append(*n, err.Error())
}

// FormView is the identification form of a session.
type FormView struct {
	VehicleID string          `json:"vehicle_id"`
	Form      models.FormData `json:"form"`
	Missing   []string        `json:"missing,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// Start registers the truck and seeds the form draft.
func (s *Session) Start(ctx context.Context, form models.FormData) (*FormView, error) {
	if strings.TrimSpace(form.InspectionDate) == "" {
		form.InspectionDate = s.svc.now().Format("2006-01-02")
	}
	name := strings.TrimSpace(form.TractorPlate)
	if name == "" {
		name = "unidentified"
	}
	truckID, err := s.svc.trucks.InsertTruck(ctx, models.Truck{
		Name:         name,
		TractorPlate: strings.TrimSpace(form.TractorPlate),
		TrailerPlate: strings.TrimSpace(form.TrailerPlate),
		VehicleType:  strings.TrimSpace(form.VehicleType),
	})
	if err != nil {
		return nil, fmt.Errorf("insert truck: %w", err)
	}
	vehicleID := truckID.Hex()

	var n notes
	n.storage(s.drafts.SaveForm(ctx, vehicleID, form), log.Fields{"vehicle_id": vehicleID})
	log.WithFields(log.Fields{"vehicle_id": vehicleID, "device": s.drafts.Namespace()}).Info("inspection session started")
	return &FormView{VehicleID: vehicleID, Form: form, Missing: form.MissingFields(), Warnings: n}, nil
}

// Form returns the form draft.
func (s *Session) Form(ctx context.Context, vehicleID string) (*FormView, error) {
	if err := checkVehicle(vehicleID); err != nil {
		return nil, err
	}
	var n notes
	form, found, err := s.drafts.LoadForm(ctx, vehicleID)
	n.storage(err, log.Fields{"vehicle_id": vehicleID})
	if err == nil && !found {
		return nil, ErrNoDraft
	}
	return &FormView{VehicleID: vehicleID, Form: form, Missing: form.MissingFields(), Warnings: n}, nil
}

// UpdateForm overwrites the form draft.
func (s *Session) UpdateForm(ctx context.Context, vehicleID string, form models.FormData) (*FormView, error) {
	if err := checkVehicle(vehicleID); err != nil {
		return nil, err
	}
	var n notes
	n.storage(s.drafts.SaveForm(ctx, vehicleID, form), log.Fields{"vehicle_id": vehicleID})
	return &FormView{VehicleID: vehicleID, Form: form, Missing: form.MissingFields(), Warnings: n}, nil
}

// ChecklistView is one category of a session.
type ChecklistView struct {
	VehicleID    string                 `json:"vehicle_id"`
	CategoryID   string                 `json:"category_id"`
	CategoryName string                 `json:"category_name"`
	Status       models.CategoryStatus  `json:"status"`
	Counts       classify.Counts        `json:"counts"`
	Items        []models.ChecklistItem `json:"items"`
	Relayed      int                    `json:"relayed,omitempty"`
	Warnings     []string               `json:"warnings,omitempty"`
}

func (s *Session) view(vehicleID string, cat catalog.Category, items []models.ChecklistItem, n notes) *ChecklistView {
	counts := classify.Count(items)
	return &ChecklistView{
		VehicleID:    vehicleID,
		CategoryID:   cat.ID,
		CategoryName: cat.Name,
		Status:       counts.Status(),
		Counts:       counts,
		Items:        items,
		Warnings:     n,
	}
}

// load returns the category draft, seeding it from the catalog when absent
// or unreadable.
func (s *Session) load(ctx context.Context, vehicleID, categoryID string, n *notes) (catalog.Category, []models.ChecklistItem, error) {
	if err := checkVehicle(vehicleID); err != nil {
		return catalog.Category{}, nil, err
	}
	cat, err := s.svc.catalog.Category(categoryID)
	if err != nil {
		return catalog.Category{}, nil, err
	}
	items, found, err := s.drafts.LoadChecklist(ctx, vehicleID, categoryID)
	n.storage(err, log.Fields{"vehicle_id": vehicleID, "category_id": categoryID})
	if err != nil || !found {
		items, err = s.svc.catalog.Seed(categoryID)
		if err != nil {
			return catalog.Category{}, nil, err
		}
	}
	return cat, items, nil
}

// Checklist returns a category draft and applies any photos relayed to it.
func (s *Session) Checklist(ctx context.Context, vehicleID, categoryID string) (*ChecklistView, error) {
	var n notes
	cat, items, err := s.load(ctx, vehicleID, categoryID, &n)
	if err != nil {
		return nil, err
	}

	relayed := 0
	itemID, photos, ok, err := s.relay.Consume(ctx, vehicleID, categoryID)
	n.storage(err, log.Fields{"vehicle_id": vehicleID, "category_id": categoryID, "op": "relay"})
	if ok {
		for i := range items {
			if items[i].ID == itemID {
				items[i].Photos = append(items[i].Photos, photos...)
				relayed = len(photos)
				break
			}
		}
		if relayed > 0 {
			n.storage(s.drafts.SaveChecklist(ctx, vehicleID, categoryID, items), log.Fields{"vehicle_id": vehicleID, "category_id": categoryID})
			log.WithFields(log.Fields{"vehicle_id": vehicleID, "item_id": itemID, "photos": relayed}).Info("relayed photos applied")
		}
	}

	v := s.view(vehicleID, cat, items, n)
	v.Relayed = relayed
	return v, nil
}

// ItemUpdate carries the fields to change on one item. Nil fields are kept.
type ItemUpdate struct {
	Status      *models.ItemStatus `json:"status,omitempty"`
	Observation *string            `json:"observation,omitempty"`
	Value       *string            `json:"value,omitempty"`
}

// UpdateItem applies u to one item and persists the category.
func (s *Session) UpdateItem(ctx context.Context, vehicleID, categoryID string, itemID int, u ItemUpdate) (*ChecklistView, error) {
	var n notes
	cat, items, err := s.load(ctx, vehicleID, categoryID, &n)
	if err != nil {
		return nil, err
	}
	i := indexOf(items, itemID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownItem, itemID)
	}
	item := &items[i]

	if u.Status != nil {
		if item.Kind == models.KindOdometer {
			return nil, fmt.Errorf("%w: odometer items take a value, not a status", ErrInvalidUpdate)
		}
		if !models.IsValidItemStatus(*u.Status) {
			return nil, fmt.Errorf("%w: status %q", ErrInvalidUpdate, *u.Status)
		}
		item.Status = *u.Status
	}
	if u.Value != nil {
		if item.Kind != models.KindOdometer {
			return nil, fmt.Errorf("%w: only the odometer takes a value", ErrInvalidUpdate)
		}
		if !isDigits(*u.Value) {
			return nil, fmt.Errorf("%w: odometer value must be digits", ErrInvalidUpdate)
		}
		item.Value = *u.Value
	}
	if u.Observation != nil {
		item.Observation = *u.Observation
	}

	n.storage(s.drafts.SaveChecklist(ctx, vehicleID, categoryID, items), log.Fields{"vehicle_id": vehicleID, "category_id": categoryID})
	return s.view(vehicleID, cat, items, n), nil
}

// RequestPhoto marks an item as the target of the next capture.
func (s *Session) RequestPhoto(ctx context.Context, vehicleID, categoryID string, itemID int) (relay.Marker, error) {
	if err := checkVehicle(vehicleID); err != nil {
		return relay.Marker{}, err
	}
	_, owner, ok := s.svc.catalog.Template(itemID)
	if !s.svc.catalog.HasCategory(categoryID) {
		return relay.Marker{}, fmt.Errorf("%w: %s", catalog.ErrUnknownCategory, categoryID)
	}
	if !ok || owner != categoryID {
		return relay.Marker{}, fmt.Errorf("%w: %d", ErrUnknownItem, itemID)
	}
	m := relay.Marker{VehicleID: vehicleID, CategoryID: categoryID, ItemID: itemID}
	if err := s.relay.Request(ctx, m); err != nil {
		return relay.Marker{}, err
	}
	return m, nil
}

// DeliverPhotos hands captured images to the pending request.
func (s *Session) DeliverPhotos(ctx context.Context, photos []string) (relay.Marker, error) {
	if len(photos) == 0 {
		return relay.Marker{}, relay.ErrNoPhotos
	}
	for _, p := range photos {
		if !strings.HasPrefix(p, "data:image/") {
			return relay.Marker{}, ErrInvalidPhoto
		}
	}
	m, found, err := s.relay.Pending(ctx)
	if err != nil {
		return relay.Marker{}, err
	}
	if !found {
		return relay.Marker{}, ErrNoPendingRequest
	}
	if err := s.relay.Deliver(ctx, photos); err != nil {
		return relay.Marker{}, err
	}
	return m, nil
}

// RemovePhoto deletes one photo of an item.
func (s *Session) RemovePhoto(ctx context.Context, vehicleID, categoryID string, itemID, index int) (*ChecklistView, error) {
	var n notes
	cat, items, err := s.load(ctx, vehicleID, categoryID, &n)
	if err != nil {
		return nil, err
	}
	i := indexOf(items, itemID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownItem, itemID)
	}
	photos := items[i].Photos
	if index < 0 || index >= len(photos) {
		return nil, ErrPhotoIndex
	}
	items[i].Photos = append(photos[:index:index], photos[index+1:]...)

	n.storage(s.drafts.SaveChecklist(ctx, vehicleID, categoryID, items), log.Fields{"vehicle_id": vehicleID, "category_id": categoryID})
	return s.view(vehicleID, cat, items, n), nil
}

// CategorySummary is one row of the category selection view.
type CategorySummary struct {
	ID     string                `json:"id"`
	Name   string                `json:"name"`
	Status models.CategoryStatus `json:"status"`
	Counts classify.Counts       `json:"counts"`
}

// Overview summarizes every category of a session.
type Overview struct {
	VehicleID  string                `json:"vehicle_id"`
	Categories []CategorySummary     `json:"categories"`
	Overall    models.CategoryStatus `json:"overall"`
	Finishable bool                  `json:"finishable"`
	Warnings   []string              `json:"warnings,omitempty"`
}

// Categories classifies every catalog category of the session.
func (s *Session) Categories(ctx context.Context, vehicleID string) (*Overview, error) {
	var n notes
	all, err := s.checklists(ctx, vehicleID, &n)
	if err != nil {
		return nil, err
	}
	ov := &Overview{VehicleID: vehicleID, Overall: classify.Overall(all), Warnings: n}
	for _, cat := range s.svc.catalog.Categories() {
		counts := classify.Count(all[cat.ID])
		ov.Categories = append(ov.Categories, CategorySummary{
			ID:     cat.ID,
			Name:   cat.Name,
			Status: counts.Status(),
			Counts: counts,
		})
	}
	ov.Finishable = classify.Finishable(s.svc.catalog.CategoryIDs(), all)
	return ov, nil
}

func (s *Session) checklists(ctx context.Context, vehicleID string, n *notes) (map[string][]models.ChecklistItem, error) {
	all := make(map[string][]models.ChecklistItem)
	for _, id := range s.svc.catalog.CategoryIDs() {
		_, items, err := s.load(ctx, vehicleID, id, n)
		if err != nil {
			return nil, err
		}
		all[id] = items
	}
	return all, nil
}

// Submit snapshots the drafts and runs the submission pipeline. The drafts
// are removed only once the inspection is committed.
func (s *Session) Submit(ctx context.Context, vehicleID, signature string) (*submission.Result, error) {
	if err := checkVehicle(vehicleID); err != nil {
		return nil, err
	}
	form, found, err := s.drafts.LoadForm(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoDraft
	}

	all := make(map[string][]models.ChecklistItem)
	for _, id := range s.svc.catalog.CategoryIDs() {
		items, found, err := s.drafts.LoadChecklist(ctx, vehicleID, id)
		if err != nil {
			return nil, err
		}
		if found {
			all[id] = items
		}
	}

	submissionID, err := s.drafts.SubmissionID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if submissionID == "" {
		submissionID = uuid.NewString()
		if err := s.drafts.SaveSubmissionID(ctx, vehicleID, submissionID); err != nil {
			return nil, err
		}
	}

	result, err := s.svc.pipeline.Submit(ctx, submission.Request{
		VehicleID:    vehicleID,
		SubmissionID: submissionID,
		Form:         form,
		Checklists:   all,
		Signature:    signature,
	})
	if err != nil {
		return nil, err
	}

	if err := s.drafts.ClearVehicle(ctx, vehicleID, s.svc.catalog.CategoryIDs()); err != nil {
		log.WithError(err).WithField("vehicle_id", vehicleID).Warn("failed to clear drafts after submission")
		result.Warnings = append(result.Warnings, err.Error())
	}
	return result, nil
}

// Discard drops every draft of a vehicle without submitting.
func (s *Session) Discard(ctx context.Context, vehicleID string) error {
	if err := checkVehicle(vehicleID); err != nil {
		return err
	}
	return s.drafts.ClearVehicle(ctx, vehicleID, s.svc.catalog.CategoryIDs())
}

func checkVehicle(vehicleID string) error {
	if !primitive.IsValidObjectID(vehicleID) {
		return fmt.Errorf("%w: %q", ErrInvalidVehicle, vehicleID)
	}
	return nil
}

func indexOf(items []models.ChecklistItem, id int) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func isDigits(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
