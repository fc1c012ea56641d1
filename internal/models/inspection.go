package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// CategoryStatus is the derived status of a category or of a whole inspection.
type CategoryStatus string

const (
	StatusPending             CategoryStatus = "pending"
	StatusInProgress          CategoryStatus = "in_progress"
	StatusConforming          CategoryStatus = "conforming"
	StatusPartiallyConforming CategoryStatus = "partially_conforming"
	StatusNonConforming       CategoryStatus = "non_conforming"
)

// IsFinal reports whether every item behind the status has been evaluated.
func (s CategoryStatus) IsFinal() bool {
	switch s {
	case StatusConforming, StatusPartiallyConforming, StatusNonConforming:
		return true
	default:
		return false
	}
}

// InspectionStatus is the status stored on an inspection record.
type InspectionStatus string

const (
	InspectionPending             InspectionStatus = InspectionStatus(StatusPending)
	InspectionInProgress          InspectionStatus = InspectionStatus(StatusInProgress)
	InspectionConforming          InspectionStatus = InspectionStatus(StatusConforming)
	InspectionPartiallyConforming InspectionStatus = InspectionStatus(StatusPartiallyConforming)
	InspectionNonConforming       InspectionStatus = InspectionStatus(StatusNonConforming)
	InspectionCompleted           InspectionStatus = "completed"
)

// IsValidInspectionStatus checks if a status can appear on an inspection record.
func IsValidInspectionStatus(s InspectionStatus) bool {
	switch s {
	case InspectionPending, InspectionInProgress, InspectionConforming,
		InspectionPartiallyConforming, InspectionNonConforming, InspectionCompleted:
		return true
	default:
		return false
	}
}

// Inspection is the backend record of one submitted (or submitting) session.
type Inspection struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TruckID        primitive.ObjectID `bson:"truck_id" json:"truck_id"`
	InspectionDate time.Time          `bson:"inspection_date" json:"inspection_date"`
	Status         InspectionStatus   `bson:"status" json:"status"`
	ReferenceCode  string             `bson:"reference_code" json:"reference_code"`
	SubmissionID   string             `bson:"submission_id" json:"submission_id"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// VehicleSnapshot is the vehicle block of a checklist form record.
type VehicleSnapshot struct {
	TractorPlate string `bson:"placa_cavalo" json:"placa_cavalo"`
	TrailerPlate string `bson:"placa_carreta" json:"placa_carreta"`
	Type         string `bson:"tipo" json:"tipo"`
}

// DriverSnapshot is the driver block of a checklist form record.
type DriverSnapshot struct {
	Name string `bson:"nome" json:"nome"`
}

// FormDates holds the issue and inspection dates as YYYY-MM-DD.
type FormDates struct {
	Issue      string `bson:"emissao" json:"emissao"`
	Inspection string `bson:"vistoria" json:"vistoria"`
}

// FormSnapshot is the structured, trimmed copy of the identification form.
type FormSnapshot struct {
	InspectedAt  time.Time       `bson:"data_vistoria" json:"data_vistoria"`
	Vehicle      VehicleSnapshot `bson:"veiculo" json:"veiculo"`
	Driver       DriverSnapshot  `bson:"motorista" json:"motorista"`
	Observations string          `bson:"observacoes" json:"observacoes"`
	Route        string          `bson:"rota" json:"rota"`
	Dates        FormDates       `bson:"datas" json:"datas"`
}

// ChecklistForm is the checklist_forms row written at submission.
type ChecklistForm struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InspectionID primitive.ObjectID `bson:"inspection_id" json:"inspection_id"`
	TruckID      primitive.ObjectID `bson:"truck_id" json:"truck_id"`
	FormData     FormSnapshot       `bson:"form_data" json:"form_data"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

// InspectionItem is one evaluated checklist item of an inspection.
type InspectionItem struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InspectionID primitive.ObjectID `bson:"inspection_id" json:"inspection_id"`
	TruckID      primitive.ObjectID `bson:"truck_id" json:"truck_id"`
	TemplateID   int                `bson:"checklist_template_id" json:"checklist_template_id"`
	Title        string             `bson:"title" json:"title"`
	Category     string             `bson:"category" json:"category"`
	Status       ItemStatus         `bson:"status" json:"status"`
	Observation  string             `bson:"observation" json:"observation"`
	Value        string             `bson:"value,omitempty" json:"value,omitempty"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// ItemPhoto is one photo attached to an inspection item.
type ItemPhoto struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InspectionItemID primitive.ObjectID `bson:"inspection_item_id" json:"inspection_item_id"`
	PhotoURL         string             `bson:"photo_url" json:"photo_url"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
}

// Signature holds the rendered signature image of an inspection.
type Signature struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InspectionID  primitive.ObjectID `bson:"inspection_id" json:"inspection_id"`
	TruckID       primitive.ObjectID `bson:"truck_id" json:"truck_id"`
	SignatureData string             `bson:"signature_data" json:"signature_data"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}
