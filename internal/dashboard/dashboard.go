// Package dashboard answers the statistics and history queries of the
// inspection dashboard.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ukydev/truck-inspection/internal/catalog"
	"github.com/ukydev/truck-inspection/internal/db"
	"github.com/ukydev/truck-inspection/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// AlertLimit is the number of critical alerts returned by Overview.
const AlertLimit = 5

const uncategorized = "Uncategorized"

// Store is the backend the dashboard reads from.
type Store interface {
	db.InspectionReader
	FindTrucks(ctx context.Context, ids []primitive.ObjectID) ([]models.Truck, error)
}

type Service struct {
	store   Store
	catalog *catalog.Catalog
}

func NewService(store Store, cat *catalog.Catalog) *Service {
	return &Service{store: store, catalog: cat}
}

// Stats counts inspections by status.
type Stats struct {
	Total               int     `json:"total"`
	Conforming          int     `json:"conforming"`
	PartiallyConforming int     `json:"partially_conforming"`
	NonConforming       int     `json:"non_conforming"`
	Pending             int     `json:"pending"`
	InProgress          int     `json:"in_progress"`
	Completed           int     `json:"completed"`
	ConformityRate      float64 `json:"conformity_rate"`
}

// ComputeStats tallies inspections. Partially conforming inspections count
// half towards the conformity rate.
func ComputeStats(inspections []models.Inspection) Stats {
	s := Stats{Total: len(inspections)}
	for _, in := range inspections {
		switch in.Status {
		case models.InspectionConforming:
			s.Conforming++
		case models.InspectionPartiallyConforming:
			s.PartiallyConforming++
		case models.InspectionNonConforming:
			s.NonConforming++
		case models.InspectionPending:
			s.Pending++
		case models.InspectionInProgress:
			s.InProgress++
		case models.InspectionCompleted:
			s.Completed++
		}
	}
	if s.Total > 0 {
		s.ConformityRate = (float64(s.Conforming) + 0.5*float64(s.PartiallyConforming)) / float64(s.Total) * 100
	}
	return s
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	inspections, err := s.store.FindInspections(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("find inspections: %w", err)
	}
	return ComputeStats(inspections), nil
}

// CategoryStat counts evaluated items of one category across inspections.
type CategoryStat struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Conforming    int    `json:"conforming"`
	NonConforming int    `json:"non_conforming"`
}

func (s *Service) CategoryStats(ctx context.Context) ([]CategoryStat, error) {
	items, err := s.store.FindItems(ctx, db.ItemQuery{})
	if err != nil {
		return nil, fmt.Errorf("find items: %w", err)
	}
	byID := map[string]*CategoryStat{}
	var order []string
	for _, item := range items {
		st, ok := byID[item.Category]
		if !ok {
			st = &CategoryStat{ID: item.Category, Name: s.categoryName(item.Category)}
			byID[item.Category] = st
			order = append(order, item.Category)
		}
		switch item.Status {
		case models.ItemConforming:
			st.Conforming++
		case models.ItemNonConforming:
			st.NonConforming++
		}
	}

	rank := map[string]int{}
	for i, id := range s.catalog.CategoryIDs() {
		rank[id] = i + 1
	}
	sort.SliceStable(order, func(i, j int) bool {
		ri, rj := rank[order[i]], rank[order[j]]
		if ri == 0 || rj == 0 {
			return ri != 0
		}
		return ri < rj
	})
	out := make([]CategoryStat, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// TimelinePoint counts the inspections of one day.
type TimelinePoint struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

// Timeline groups inspections per UTC day, oldest first. Completed counts
// inspections that reached a final status.
func (s *Service) Timeline(ctx context.Context) ([]TimelinePoint, error) {
	inspections, err := s.store.FindInspections(ctx)
	if err != nil {
		return nil, fmt.Errorf("find inspections: %w", err)
	}
	byDay := map[string]*TimelinePoint{}
	for _, in := range inspections {
		day := in.InspectionDate.UTC().Format("2006-01-02")
		p, ok := byDay[day]
		if !ok {
			p = &TimelinePoint{Date: day}
			byDay[day] = p
		}
		p.Total++
		if in.Status == models.InspectionCompleted || models.CategoryStatus(in.Status).IsFinal() {
			p.Completed++
		}
	}
	out := make([]TimelinePoint, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// InspectionSummary is one row of the history table.
type InspectionSummary struct {
	ID             string                  `json:"id"`
	TruckID        string                  `json:"truck_id"`
	TruckName      string                  `json:"truck_name"`
	TractorPlate   string                  `json:"tractor_plate"`
	TrailerPlate   string                  `json:"trailer_plate"`
	InspectionDate time.Time               `json:"inspection_date"`
	Status         models.InspectionStatus `json:"status"`
	ReferenceCode  string                  `json:"reference_code"`
}

// Filter narrows the history table. An empty Status or "all" keeps every
// status; Search matches reference code, truck name and plates.
type Filter struct {
	Status models.InspectionStatus
	Search string
	Limit  int
}

var ErrInvalidFilter = errors.New("invalid status filter")

func (s *Service) Inspections(ctx context.Context, f Filter) ([]InspectionSummary, error) {
	if f.Status == "all" {
		f.Status = ""
	}
	if f.Status != "" && !models.IsValidInspectionStatus(f.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, f.Status)
	}
	inspections, err := s.store.FindInspections(ctx)
	if err != nil {
		return nil, fmt.Errorf("find inspections: %w", err)
	}
	trucks, err := s.trucks(ctx, inspections)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := []InspectionSummary{}
	for _, in := range inspections {
		if f.Status != "" && in.Status != f.Status {
			continue
		}
		row := summarize(in, trucks[in.TruckID])
		if search != "" && !matches(row, search) {
			continue
		}
		out = append(out, row)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func summarize(in models.Inspection, truck models.Truck) InspectionSummary {
	return InspectionSummary{
		ID:             in.ID.Hex(),
		TruckID:        in.TruckID.Hex(),
		TruckName:      truck.Name,
		TractorPlate:   truck.TractorPlate,
		TrailerPlate:   truck.TrailerPlate,
		InspectionDate: in.InspectionDate,
		Status:         in.Status,
		ReferenceCode:  in.ReferenceCode,
	}
}

func matches(row InspectionSummary, search string) bool {
	for _, field := range []string{row.ReferenceCode, row.TruckName, row.TractorPlate, row.TrailerPlate} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func (s *Service) trucks(ctx context.Context, inspections []models.Inspection) (map[primitive.ObjectID]models.Truck, error) {
	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	for _, in := range inspections {
		if !seen[in.TruckID] {
			seen[in.TruckID] = true
			ids = append(ids, in.TruckID)
		}
	}
	out := make(map[primitive.ObjectID]models.Truck, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	trucks, err := s.store.FindTrucks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find trucks: %w", err)
	}
	for _, t := range trucks {
		out[t.ID] = t
	}
	return out, nil
}

// Alert is a recently recorded non-conforming item.
type Alert struct {
	ItemID       string    `json:"item_id"`
	InspectionID string    `json:"inspection_id"`
	TruckName    string    `json:"truck_name"`
	Title        string    `json:"title"`
	Category     string    `json:"category"`
	CategoryName string    `json:"category_name"`
	Observation  string    `json:"observation"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Alerts returns the latest non-conforming items, newest first.
func (s *Service) Alerts(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = AlertLimit
	}
	items, err := s.store.FindItems(ctx, db.ItemQuery{
		Status:      models.ItemNonConforming,
		NewestFirst: true,
		Limit:       int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("find items: %w", err)
	}
	names := map[primitive.ObjectID]string{}
	if len(items) > 0 {
		ids := make([]primitive.ObjectID, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.TruckID)
		}
		trucks, err := s.store.FindTrucks(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("find trucks: %w", err)
		}
		for _, t := range trucks {
			names[t.ID] = t.Name
		}
	}

	out := make([]Alert, 0, len(items))
	for _, item := range items {
		out = append(out, Alert{
			ItemID:       item.ID.Hex(),
			InspectionID: item.InspectionID.Hex(),
			TruckName:    names[item.TruckID],
			Title:        s.itemTitle(item),
			Category:     item.Category,
			CategoryName: s.categoryName(item.Category),
			Observation:  item.Observation,
			UpdatedAt:    item.UpdatedAt,
		})
	}
	return out, nil
}

// ItemDetail is a recorded item with its photos.
type ItemDetail struct {
	models.InspectionItem
	Photos []string `json:"photos"`
}

// CategoryDetail groups the items of one category.
type CategoryDetail struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Items []ItemDetail `json:"items"`
}

// Details is the full record of one inspection.
type Details struct {
	InspectionSummary
	Categories []CategoryDetail     `json:"categories"`
	Signature  string               `json:"signature,omitempty"`
	Form       *models.FormSnapshot `json:"form,omitempty"`
}

func (s *Service) Details(ctx context.Context, id string) (*Details, error) {
	in, err := s.store.FindInspectionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.store.FindItems(ctx, db.ItemQuery{InspectionID: &in.ID})
	if err != nil {
		return nil, fmt.Errorf("find items: %w", err)
	}

	photos := map[primitive.ObjectID][]string{}
	if len(items) > 0 {
		ids := make([]primitive.ObjectID, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		records, err := s.store.FindPhotos(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("find photos: %w", err)
		}
		for _, p := range records {
			photos[p.InspectionItemID] = append(photos[p.InspectionItemID], p.PhotoURL)
		}
	}

	trucks, err := s.trucks(ctx, []models.Inspection{*in})
	if err != nil {
		return nil, err
	}
	d := &Details{InspectionSummary: summarize(*in, trucks[in.TruckID])}

	index := map[string]int{}
	for _, item := range items {
		i, ok := index[item.Category]
		if !ok {
			i = len(d.Categories)
			index[item.Category] = i
			d.Categories = append(d.Categories, CategoryDetail{ID: item.Category, Name: s.categoryName(item.Category)})
		}
		item.Title = s.itemTitle(item)
		p := photos[item.ID]
		if p == nil {
			p = []string{}
		}
		d.Categories[i].Items = append(d.Categories[i].Items, ItemDetail{InspectionItem: item, Photos: p})
	}

	sig, err := s.store.FindSignature(ctx, in.ID)
	switch {
	case err == nil:
		d.Signature = sig.SignatureData
	case !errors.Is(err, db.ErrNotFound):
		return nil, fmt.Errorf("find signature: %w", err)
	}
	form, err := s.store.FindChecklistForm(ctx, in.ID)
	switch {
	case err == nil:
		d.Form = &form.FormData
	case !errors.Is(err, db.ErrNotFound):
		return nil, fmt.Errorf("find checklist form: %w", err)
	}
	return d, nil
}

// Overview is the landing payload of the dashboard.
type Overview struct {
	Stats      Stats               `json:"stats"`
	Categories []CategoryStat      `json:"categories"`
	Timeline   []TimelinePoint     `json:"timeline"`
	Recent     []InspectionSummary `json:"recent"`
	Alerts     []Alert             `json:"alerts"`
}

// Overview runs the independent dashboard queries concurrently and fails if
// any of them fails.
func (s *Service) Overview(ctx context.Context, recent int) (*Overview, error) {
	var ov Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ov.Stats, err = s.Stats(gctx)
		return err
	})
	g.Go(func() (err error) {
		ov.Categories, err = s.CategoryStats(gctx)
		return err
	})
	g.Go(func() (err error) {
		ov.Timeline, err = s.Timeline(gctx)
		return err
	})
	g.Go(func() (err error) {
		ov.Recent, err = s.Inspections(gctx, Filter{Limit: recent})
		return err
	})
	g.Go(func() (err error) {
		ov.Alerts, err = s.Alerts(gctx, AlertLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ov, nil
}

func (s *Service) categoryName(id string) string {
	if cat, err := s.catalog.Category(id); err == nil {
		return cat.Name
	}
	if id == "" {
		return uncategorized
	}
	return id
}

func (s *Service) itemTitle(item models.InspectionItem) string {
	if item.Title != "" {
		return item.Title
	}
	if t, _, ok := s.catalog.Template(item.TemplateID); ok {
		return t.Title
	}
	return fmt.Sprintf("#%d", item.TemplateID)
}
