package db

import (
	"context"
	"errors"

	"github.com/ukydev/truck-inspection/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// TruckCollection defines the interface for truck data operations.
type TruckCollection interface {
	InsertTruck(ctx context.Context, truck models.Truck) (primitive.ObjectID, error)
	FindTruckByID(ctx context.Context, id string) (*models.Truck, error)
	FindTrucks(ctx context.Context, ids []primitive.ObjectID) ([]models.Truck, error)
}

// InspectionWriter defines the writes performed by a submission.
type InspectionWriter interface {
	// WithTransaction runs fn atomically when the backend supports it and
	// plainly otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	FindInspectionBySubmission(ctx context.Context, submissionID string) (*models.Inspection, error)
	InsertInspection(ctx context.Context, inspection models.Inspection) (primitive.ObjectID, error)
	DiscardInspectionChildren(ctx context.Context, inspectionID primitive.ObjectID) error
	InsertChecklistForm(ctx context.Context, form models.ChecklistForm) error
	InsertItems(ctx context.Context, items []models.InspectionItem) ([]primitive.ObjectID, error)
	InsertPhotos(ctx context.Context, photos []models.ItemPhoto) error
	InsertSignature(ctx context.Context, signature models.Signature) error
	UpdateInspectionStatus(ctx context.Context, id primitive.ObjectID, status models.InspectionStatus) error
}

// ItemQuery filters inspection items.
type ItemQuery struct {
	InspectionID *primitive.ObjectID
	Status       models.ItemStatus
	NewestFirst  bool
	Limit        int64
}

// InspectionReader defines the queries behind the dashboard.
type InspectionReader interface {
	FindInspections(ctx context.Context) ([]models.Inspection, error)
	FindInspectionByID(ctx context.Context, id string) (*models.Inspection, error)
	FindItems(ctx context.Context, q ItemQuery) ([]models.InspectionItem, error)
	FindPhotos(ctx context.Context, itemIDs []primitive.ObjectID) ([]models.ItemPhoto, error)
	FindSignature(ctx context.Context, inspectionID primitive.ObjectID) (*models.Signature, error)
	FindChecklistForm(ctx context.Context, inspectionID primitive.ObjectID) (*models.ChecklistForm, error)
}

// InspectionStore is the full backend used by the service.
type InspectionStore interface {
	TruckCollection
	InspectionWriter
	InspectionReader
}
