package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/truck-inspection/internal/catalog"
	"github.com/ukydev/truck-inspection/internal/db"
	"github.com/ukydev/truck-inspection/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var day = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store       *db.MemoryStore
	svc         *Service
	trucks      map[string]primitive.ObjectID
	inspections map[string]primitive.ObjectID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:       db.NewMemoryStore(),
		trucks:      map[string]primitive.ObjectID{},
		inspections: map[string]primitive.ObjectID{},
	}
	f.svc = NewService(f.store, catalog.Default())

	for _, plate := range []string{"ABC1D23", "QWE4R56"} {
		id, err := f.store.InsertTruck(ctx, models.Truck{Name: plate, TractorPlate: plate, TrailerPlate: "TR-" + plate})
		require.NoError(t, err)
		f.trucks[plate] = id
	}

	rows := []struct {
		ref    string
		truck  string
		date   time.Time
		status models.InspectionStatus
	}{
		{"INS-A", "ABC1D23", day, models.InspectionConforming},
		{"INS-B", "ABC1D23", day.Add(2 * time.Hour), models.InspectionPartiallyConforming},
		{"INS-C", "QWE4R56", day.Add(24 * time.Hour), models.InspectionNonConforming},
		{"INS-D", "QWE4R56", day.Add(25 * time.Hour), models.InspectionInProgress},
	}
	for _, r := range rows {
		id, err := f.store.InsertInspection(ctx, models.Inspection{
			TruckID:        f.trucks[r.truck],
			InspectionDate: r.date,
			Status:         r.status,
			ReferenceCode:  r.ref,
			SubmissionID:   r.ref,
		})
		require.NoError(t, err)
		f.inspections[r.ref] = id
	}
	return f
}

func (f *fixture) addItems(t *testing.T, ref string, items ...models.InspectionItem) []primitive.ObjectID {
	t.Helper()
	for i := range items {
		items[i].InspectionID = f.inspections[ref]
	}
	ids, err := f.store.InsertItems(context.Background(), items)
	require.NoError(t, err)
	return ids
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]models.Inspection{
		{Status: models.InspectionConforming},
		{Status: models.InspectionConforming},
		{Status: models.InspectionPartiallyConforming},
		{Status: models.InspectionNonConforming},
	})
	assert.Equal(t, 4, stats.Total)
	assert.InDelta(t, 62.5, stats.ConformityRate, 1e-9)

	assert.Zero(t, ComputeStats(nil).ConformityRate)
}

func TestService_Stats(t *testing.T) {
	f := newFixture(t)
	stats, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Total:               4,
		Conforming:          1,
		PartiallyConforming: 1,
		NonConforming:       1,
		InProgress:          1,
		ConformityRate:      37.5,
	}, stats)
}

func TestService_InspectionsFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	all, err := f.svc.Inspections(ctx, Filter{Status: "all"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "INS-D", all[0].ReferenceCode)
	assert.Equal(t, "QWE4R56", all[0].TruckName)

	nc, err := f.svc.Inspections(ctx, Filter{Status: models.InspectionNonConforming})
	require.NoError(t, err)
	require.Len(t, nc, 1)
	assert.Equal(t, "INS-C", nc[0].ReferenceCode)

	byPlate, err := f.svc.Inspections(ctx, Filter{Search: "tr-abc"})
	require.NoError(t, err)
	assert.Len(t, byPlate, 2)

	limited, err := f.svc.Inspections(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = f.svc.Inspections(ctx, Filter{Status: "approved"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestService_CategoryStatsAndTimeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addItems(t, "INS-A",
		models.InspectionItem{TemplateID: 8, Category: "mechanical", Status: models.ItemConforming},
		models.InspectionItem{TemplateID: 1, Category: "exterior", Status: models.ItemConforming},
		models.InspectionItem{TemplateID: 2, Category: "exterior", Status: models.ItemNonConforming},
	)

	stats, err := f.svc.CategoryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []CategoryStat{
		{ID: "exterior", Name: "Exterior", Conforming: 1, NonConforming: 1},
		{ID: "mechanical", Name: "Mecânico", Conforming: 1},
	}, stats)

	timeline, err := f.svc.Timeline(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TimelinePoint{
		{Date: "2026-10-14", Total: 2, Completed: 2},
		{Date: "2026-10-15", Total: 2, Completed: 1},
	}, timeline)
}

func TestService_AlertsNewestFirst(t *testing.T) {
	f := newFixture(t)
	var items []models.InspectionItem
	for i := 0; i < 7; i++ {
		items = append(items, models.InspectionItem{
			TruckID:     f.trucks["QWE4R56"],
			TemplateID:  i + 1,
			Category:    "exterior",
			Status:      models.ItemNonConforming,
			Observation: "broken",
			UpdatedAt:   day.Add(time.Duration(i) * time.Minute),
		})
	}
	items = append(items, models.InspectionItem{TemplateID: 20, Category: "interior", Status: models.ItemConforming, UpdatedAt: day.Add(time.Hour)})
	f.addItems(t, "INS-C", items...)

	alerts, err := f.svc.Alerts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, alerts, AlertLimit)
	assert.Equal(t, "Lataria e pintura", alerts[0].Title)
	assert.Equal(t, "QWE4R56", alerts[0].TruckName)
	assert.Equal(t, "Exterior", alerts[0].CategoryName)
	assert.True(t, alerts[0].UpdatedAt.After(alerts[4].UpdatedAt))
}

func TestService_Details(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := "INS-B"
	ids := f.addItems(t, ref,
		models.InspectionItem{TemplateID: 1, Title: "Faróis dianteiros", Category: "exterior", Status: models.ItemConforming},
		models.InspectionItem{TemplateID: 3, Title: "Pneus", Category: "exterior", Status: models.ItemNonConforming, Observation: "careca"},
		models.InspectionItem{TemplateID: 19, Title: "Hodômetro", Category: "interior", Status: models.ItemConforming, Value: "120000"},
	)
	require.NoError(t, f.store.InsertPhotos(ctx, []models.ItemPhoto{
		{InspectionItemID: ids[1], PhotoURL: "data:image/jpeg;base64,A"},
		{InspectionItemID: ids[1], PhotoURL: "data:image/jpeg;base64,B"},
	}))
	require.NoError(t, f.store.InsertSignature(ctx, models.Signature{InspectionID: f.inspections[ref], SignatureData: "sig"}))

	d, err := f.svc.Details(ctx, f.inspections[ref].Hex())
	require.NoError(t, err)
	assert.Equal(t, "INS-B", d.ReferenceCode)
	assert.Equal(t, models.InspectionPartiallyConforming, d.Status)
	assert.Equal(t, "sig", d.Signature)
	assert.Nil(t, d.Form)
	require.Len(t, d.Categories, 2)
	assert.Equal(t, "Exterior", d.Categories[0].Name)
	require.Len(t, d.Categories[0].Items, 2)
	assert.Equal(t, []string{"data:image/jpeg;base64,A", "data:image/jpeg;base64,B"}, d.Categories[0].Items[1].Photos)
	assert.Empty(t, d.Categories[0].Items[0].Photos)
	assert.Equal(t, "120000", d.Categories[1].Items[0].Value)

	_, err = f.svc.Details(ctx, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestService_Overview(t *testing.T) {
	f := newFixture(t)
	f.addItems(t, "INS-C", models.InspectionItem{TruckID: f.trucks["QWE4R56"], TemplateID: 24, Category: "security", Status: models.ItemNonConforming, UpdatedAt: day})

	ov, err := f.svc.Overview(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 4, ov.Stats.Total)
	assert.Len(t, ov.Recent, 3)
	assert.Len(t, ov.Alerts, 1)
	assert.Len(t, ov.Timeline, 2)
	require.Len(t, ov.Categories, 1)
	assert.Equal(t, "security", ov.Categories[0].ID)
}
