package models

import "strings"

// ItemStatus is the conformance judgement of a single checklist item.
// The zero value means the item has not been evaluated yet.
type ItemStatus string

const (
	ItemUnevaluated   ItemStatus = ""
	ItemConforming    ItemStatus = "conforming"
	ItemNonConforming ItemStatus = "non_conforming"
)

// IsValidItemStatus reports whether s can be set on a judgement item.
func IsValidItemStatus(s ItemStatus) bool {
	switch s {
	case ItemUnevaluated, ItemConforming, ItemNonConforming:
		return true
	default:
		return false
	}
}

// ItemKind distinguishes conformance items from the numeric odometer reading.
type ItemKind string

const (
	KindJudgement ItemKind = "judgement"
	KindOdometer  ItemKind = "odometer"
)

// ChecklistItem is the draft state of one catalog item inside a session.
type ChecklistItem struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Kind        ItemKind   `json:"kind"`
	Status      ItemStatus `json:"status"`
	Observation string     `json:"observation"`
	Photos      []string   `json:"photos"`
	Value       string     `json:"value,omitempty"`
}

// ResolvedStatus returns the status used for classification. An odometer
// item counts as conforming once a reading has been entered.
func (i ChecklistItem) ResolvedStatus() ItemStatus {
	if i.Kind == KindOdometer {
		if strings.TrimSpace(i.Value) != "" {
			return ItemConforming
		}
		return ItemUnevaluated
	}
	return i.Status
}

// FormData is the vehicle identification form of a session.
type FormData struct {
	Driver         string `json:"motorista"`
	TractorPlate   string `json:"placaCavalo"`
	TrailerPlate   string `json:"placaCarreta"`
	VehicleType    string `json:"tipoVeiculo"`
	IssueDate      string `json:"dataEmissao"`
	Observations   string `json:"observacoes"`
	Route          string `json:"rota"`
	InspectionDate string `json:"data"`
}

// MissingFields lists the display names of required fields that are blank,
// in form order.
func (f FormData) MissingFields() []string {
	required := []struct {
		name  string
		value string
	}{
		{"driver", f.Driver},
		{"tractor plate", f.TractorPlate},
		{"trailer plate", f.TrailerPlate},
		{"vehicle type", f.VehicleType},
		{"inspection date", f.InspectionDate},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	return missing
}
