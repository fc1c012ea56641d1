// Package submission commits a finished inspection session to the backend.
package submission

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
	"github.com/ukydev/truck-inspection/internal/events"
	"github.com/ukydev/truck-inspection/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFinishable means at least one category is pending or in progress.
	ErrNotFinishable = errors.New("inspection is not finished: every category must be fully evaluated")
	ErrUnknownItem   = errors.New("item is not part of the catalog")
	ErrInvalidTruck  = errors.New("invalid vehicle id")
)

// ValidationError lists every required value that is missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// Request is a snapshot of one session's drafts.
type Request struct {
	VehicleID    string
	SubmissionID string
	Form         models.FormData
	Checklists   map[string][]models.ChecklistItem
	Signature    string
}

// Result describes the committed inspection.
type Result struct {
	InspectionID  string                  `json:"inspection_id"`
	ReferenceCode string                  `json:"reference_code"`
	Status        models.InspectionStatus `json:"status"`
	Replayed      bool                    `json:"replayed"`
	Warnings      []string                `json:"warnings,omitempty"`
}

type Pipeline struct {
	store              db.InspectionWriter
	catalog            *catalog.Catalog
	events             events.Publisher
	now                func() time.Time
	requireObservation bool
}

type Option func(*Pipeline)

func WithPublisher(p events.Publisher) Option {
	return func(pl *Pipeline) { pl.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

// RequireObservation turns a non-conforming item without an observation
// into a validation failure instead of a warning.
func RequireObservation(required bool) Option {
	return func(pl *Pipeline) { pl.requireObservation = required }
}

func New(store db.InspectionWriter, cat *catalog.Catalog, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:   store,
		catalog: cat,
		events:  events.NopPublisher{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate runs every check that happens before the backend is touched and
// returns the advisory warnings.
func (p *Pipeline) Validate(req Request) ([]string, error) {
	missing := req.Form.MissingFields()
	if strings.TrimSpace(req.Signature) == "" {
		missing = append(missing, "signature")
	}

	var warnings []string
	for _, categoryID := range p.catalog.CategoryIDs() {
		for _, item := range req.Checklists[categoryID] {
			if item.ResolvedStatus() != models.ItemNonConforming || strings.TrimSpace(item.Observation) != "" {
				continue
			}
			name := fmt.Sprintf("observation for %q", item.Title)
			if p.requireObservation {
				missing = append(missing, name)
			} else {
				warnings = append(warnings, name+" is empty")
			}
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	for categoryID, items := range req.Checklists {
		for _, item := range items {
			_, owner, ok := p.catalog.Template(item.ID)
			if !ok || owner != categoryID {
				return nil, fmt.Errorf("%w: %d in %s", ErrUnknownItem, item.ID, categoryID)
			}
		}
	}
	if !classify.Finishable(p.catalog.CategoryIDs(), req.Checklists) {
		return nil, ErrNotFinishable
	}
	return warnings, nil
}

// Submit writes the inspection, its form, items, photos and signature, then
// sets the final status. A request carrying a submission id that already
// produced a final inspection is answered without writing; one that stopped
// half way is resumed on the same inspection.
func (p *Pipeline) Submit(ctx context.Context, req Request) (*Result, error) {
	warnings, err := p.Validate(req)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.WithFields(log.Fields{"vehicle_id": req.VehicleID, "warning": w}).Warn("submitting with advisory warning")
	}

	truckID, err := primitive.ObjectIDFromHex(req.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTruck, req.VehicleID)
	}

	var resume *models.Inspection
	if req.SubmissionID != "" {
		existing, err := p.store.FindInspectionBySubmission(ctx, req.SubmissionID)
		switch {
		case err == nil && isFinal(existing.Status):
			log.WithFields(log.Fields{
				"inspection_id": existing.ID.Hex(),
				"submission_id": req.SubmissionID,
			}).Info("submission already committed")
			return &Result{
				InspectionID:  existing.ID.Hex(),
				ReferenceCode: existing.ReferenceCode,
				Status:        existing.Status,
				Replayed:      true,
				Warnings:      warnings,
			}, nil
		case err == nil:
			resume = existing
		case !errors.Is(err, db.ErrNotFound):
			return nil, fmt.Errorf("look up submission: %w", err)
		}
	}

	items := p.flatten(req.Checklists)
	status := models.InspectionStatus(classify.Overall(req.Checklists))

	var inspectionID primitive.ObjectID
	var reference string
	err = p.store.WithTransaction(ctx, func(ctx context.Context) error {
		now := p.now()

		// 1. inspection
		if resume != nil {
			inspectionID, reference = resume.ID, resume.ReferenceCode
			if err := p.store.DiscardInspectionChildren(ctx, inspectionID); err != nil {
				return fmt.Errorf("discard partial inspection: %w", err)
			}
		} else {
			reference = ReferenceCode(now)
			id, err := p.store.InsertInspection(ctx, models.Inspection{
				TruckID:        truckID,
				InspectionDate: now,
				Status:         models.InspectionInProgress,
				ReferenceCode:  reference,
				SubmissionID:   req.SubmissionID,
			})
			if err != nil {
				return fmt.Errorf("insert inspection: %w", err)
			}
			inspectionID = id
		}

		// 2. form snapshot
		if err := p.store.InsertChecklistForm(ctx, models.ChecklistForm{
			InspectionID: inspectionID,
			TruckID:      truckID,
			FormData:     Snapshot(req.Form, now),
		}); err != nil {
			return fmt.Errorf("insert checklist form: %w", err)
		}

		// 3. items
		records := make([]models.InspectionItem, len(items))
		for i, item := range items {
			records[i] = models.InspectionItem{
				InspectionID: inspectionID,
				TruckID:      truckID,
				TemplateID:   item.ID,
				Title:        item.Title,
				Category:     item.Category,
				Status:       item.ResolvedStatus(),
				Observation:  strings.TrimSpace(item.Observation),
				Value:        strings.TrimSpace(item.Value),
				UpdatedAt:    now,
			}
		}
		itemIDs, err := p.store.InsertItems(ctx, records)
		if err != nil {
			return fmt.Errorf("insert items: %w", err)
		}
		if len(itemIDs) != len(records) {
			return fmt.Errorf("insert items: got %d ids for %d items", len(itemIDs), len(records))
		}

		// 4. photos
		var photos []models.ItemPhoto
		for i, item := range items {
			for _, photo := range item.Photos {
				photos = append(photos, models.ItemPhoto{InspectionItemID: itemIDs[i], PhotoURL: photo})
			}
		}
		if len(photos) > 0 {
			if err := p.store.InsertPhotos(ctx, photos); err != nil {
				return fmt.Errorf("insert photos: %w", err)
			}
		}

		// 5. signature
		if err := p.store.InsertSignature(ctx, models.Signature{
			InspectionID:  inspectionID,
			TruckID:       truckID,
			SignatureData: req.Signature,
		}); err != nil {
			return fmt.Errorf("insert signature: %w", err)
		}

		// 6. final status
		if err := p.store.UpdateInspectionStatus(ctx, inspectionID, status); err != nil {
			return fmt.Errorf("update inspection status: %w", err)
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"vehicle_id":    req.VehicleID,
			"submission_id": req.SubmissionID,
		}).Error("inspection submission failed")
		return nil, err
	}

	result := &Result{
		InspectionID:  inspectionID.Hex(),
		ReferenceCode: reference,
		Status:        status,
		Warnings:      warnings,
	}
	log.WithFields(log.Fields{
		"inspection_id":  result.InspectionID,
		"reference_code": reference,
		"status":         status,
		"items":          len(items),
		"resumed":        resume != nil,
	}).Info("inspection submitted")

	counts := classify.Count(items)
	if err := p.events.PublishCompleted(ctx, events.Completed{
		InspectionID:  result.InspectionID,
		VehicleID:     req.VehicleID,
		ReferenceCode: reference,
		Status:        string(status),
		Items:         counts.Total,
		NonConforming: counts.NonConforming,
		SubmittedAt:   p.now(),
	}); err != nil {
		log.WithError(err).WithField("inspection_id", result.InspectionID).Warn("failed to publish completion event")
	}
	return result, nil
}

// flatten orders items by catalog category, keeping each list's order.
func (p *Pipeline) flatten(checklists map[string][]models.ChecklistItem) []models.ChecklistItem {
	var out []models.ChecklistItem
	for _, categoryID := range p.catalog.CategoryIDs() {
		for _, item := range checklists[categoryID] {
			item.Category = categoryID
			out = append(out, item)
		}
	}
	return out
}

func isFinal(s models.InspectionStatus) bool {
	return s == models.InspectionCompleted || models.CategoryStatus(s).IsFinal()
}

// Snapshot trims the form and fills blank dates with the day of now.
func Snapshot(form models.FormData, now time.Time) models.FormSnapshot {
	today := now.Format("2006-01-02")
	orToday := func(s string) string {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
		return today
	}
	return models.FormSnapshot{
		InspectedAt: now,
		Vehicle: models.VehicleSnapshot{
			TractorPlate: strings.TrimSpace(form.TractorPlate),
			TrailerPlate: strings.TrimSpace(form.TrailerPlate),
			Type:         strings.TrimSpace(form.VehicleType),
		},
		Driver:       models.DriverSnapshot{Name: strings.TrimSpace(form.Driver)},
		Observations: strings.TrimSpace(form.Observations),
		Route:        strings.TrimSpace(form.Route),
		Dates: models.FormDates{
			Issue:      orToday(form.IssueDate),
			Inspection: orToday(form.InspectionDate),
		},
	}
}

// ReferenceCode returns a human readable code such as INS-20261016-3F9A1C.
func ReferenceCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("INS-%s-%s", now.Format("20060102"), suffix)
}
