package submission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/truck-inspection/internal/catalog"
	"github.com/ukydev/truck-inspection/internal/db"
	"github.com/ukydev/truck-inspection/internal/events"
	"github.com/ukydev/truck-inspection/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testCatalog = `
version: "test-1"
categories:
  - id: cab
    name: Cab
    items:
      - {id: 1, title: Seat belts}
      - {id: 2, title: Horn}
      - {id: 3, title: Odometer, kind: odometer}
  - id: tires
    name: Tires
    items:
      - {id: 4, title: Front left}
      - {id: 5, title: Front right}
      - {id: 6, title: Spare}
`

const signature = "data:image/png;base64,iVBORw0KGgo"

// flakyStore fails InsertPhotos a number of times. With plain set it runs
// transactions without rollback, like a standalone MongoDB server.
type flakyStore struct {
	*db.MemoryStore
	photoFailures int
	plain         bool
}

func (s *flakyStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.plain {
		return fn(ctx)
	}
	return s.MemoryStore.WithTransaction(ctx, fn)
}

func (s *flakyStore) InsertPhotos(ctx context.Context, photos []models.ItemPhoto) error {
	if s.photoFailures > 0 {
		s.photoFailures--
		return errors.New("connection reset")
	}
	return s.MemoryStore.InsertPhotos(ctx, photos)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishCompleted(ctx context.Context, ev events.Completed) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockPublisher) Close() {}

func testPipeline(t *testing.T, store db.InspectionWriter, opts ...Option) *Pipeline {
	t.Helper()
	cat, err := catalog.Load([]byte(testCatalog))
	require.NoError(t, err)
	now := time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC)
	return New(store, cat, append([]Option{WithClock(func() time.Time { return now })}, opts...)...)
}

func validForm() models.FormData {
	return models.FormData{
		Driver:         "  Maria Souza ",
		TractorPlate:   "ABC1D23",
		TrailerPlate:   "XYZ9K87",
		VehicleType:    "Carreta",
		InspectionDate: "2026-10-16",
	}
}

// sessionRequest builds a 2x3 session where the listed item ids are
// non-conforming and every other item is conforming.
func sessionRequest(vehicleID string, nonConforming ...int) Request {
	bad := map[int]bool{}
	for _, id := range nonConforming {
		bad[id] = true
	}
	item := func(id int, title, category string) models.ChecklistItem {
		it := models.ChecklistItem{ID: id, Title: title, Category: category, Kind: models.KindJudgement, Status: models.ItemConforming}
		if bad[id] {
			it.Status = models.ItemNonConforming
			it.Observation = "  worn  "
			it.Photos = []string{"data:image/jpeg;base64,AAA"}
		}
		return it
	}
	odometer := models.ChecklistItem{ID: 3, Title: "Odometer", Category: "cab", Kind: models.KindOdometer, Value: "123456"}
	return Request{
		VehicleID: vehicleID,
		Form:      validForm(),
		Checklists: map[string][]models.ChecklistItem{
			"cab":   {item(1, "Seat belts", "cab"), item(2, "Horn", "cab"), odometer},
			"tires": {item(4, "Front left", "tires"), item(5, "Front right", "tires"), item(6, "Spare", "tires")},
		},
		Signature: signature,
	}
}

func TestSubmit_OverallStatus(t *testing.T) {
	cases := []struct {
		name string
		bad  []int
		want models.InspectionStatus
	}{
		{"all conforming", nil, models.InspectionConforming},
		{"one of six", []int{4}, models.InspectionPartiallyConforming},
		{"two of six", []int{1, 5}, models.InspectionNonConforming},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := db.NewMemoryStore()
			ctx := context.Background()
			truckID, err := store.InsertTruck(ctx, models.Truck{Name: "ABC1D23"})
			require.NoError(t, err)

			res, err := testPipeline(t, store).Submit(ctx, sessionRequest(truckID.Hex(), tc.bad...))
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Status)
			assert.False(t, res.Replayed)
			assert.Regexp(t, `^INS-20261016-[0-9A-F]{6}$`, res.ReferenceCode)

			record, err := store.FindInspectionByID(ctx, res.InspectionID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, record.Status)
			assert.Equal(t, truckID, record.TruckID)

			items, err := store.FindItems(ctx, db.ItemQuery{InspectionID: &record.ID})
			require.NoError(t, err)
			assert.Len(t, items, 6)

			var itemIDs []primitive.ObjectID
			for _, it := range items {
				itemIDs = append(itemIDs, it.ID)
			}
			photos, err := store.FindPhotos(ctx, itemIDs)
			require.NoError(t, err)
			assert.Len(t, photos, len(tc.bad))

			sig, err := store.FindSignature(ctx, record.ID)
			require.NoError(t, err)
			assert.Equal(t, signature, sig.SignatureData)
		})
	}
}

func TestSubmit_ItemAndFormRecords(t *testing.T) {
	store := db.NewMemoryStore()
	ctx := context.Background()
	truckID := primitive.NewObjectID()

	req := sessionRequest(truckID.Hex(), 2)
	req.Form.IssueDate = "   "
	res, err := testPipeline(t, store).Submit(ctx, req)
	require.NoError(t, err)

	id, err := primitive.ObjectIDFromHex(res.InspectionID)
	require.NoError(t, err)
	form, err := store.FindChecklistForm(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", form.FormData.Driver.Name)
	assert.Equal(t, "2026-10-16", form.FormData.Dates.Issue)
	assert.Equal(t, "2026-10-16", form.FormData.Dates.Inspection)

	items, err := store.FindItems(ctx, db.ItemQuery{InspectionID: &id})
	require.NoError(t, err)
	byTemplate := map[int]models.InspectionItem{}
	for _, it := range items {
		byTemplate[it.TemplateID] = it
	}
	assert.Equal(t, "worn", byTemplate[2].Observation)
	assert.Equal(t, models.ItemNonConforming, byTemplate[2].Status)
	assert.Equal(t, models.ItemConforming, byTemplate[3].Status)
	assert.Equal(t, "123456", byTemplate[3].Value)
	assert.Equal(t, "tires", byTemplate[6].Category)
}

func TestSubmit_ValidationBeforeBackend(t *testing.T) {
	store := db.NewMemoryStore()
	req := sessionRequest(primitive.NewObjectID().Hex())
	req.Form.Driver = " "
	req.Form.TrailerPlate = ""
	req.Signature = ""

	_, err := testPipeline(t, store).Submit(context.Background(), req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"driver", "trailer plate", "signature"}, verr.Missing)

	all, err := store.FindInspections(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSubmit_NotFinishable(t *testing.T) {
	store := db.NewMemoryStore()
	req := sessionRequest(primitive.NewObjectID().Hex())
	req.Checklists["tires"][2].Status = models.ItemUnevaluated

	_, err := testPipeline(t, store).Submit(context.Background(), req)
	assert.ErrorIs(t, err, ErrNotFinishable)

	delete(req.Checklists, "tires")
	_, err = testPipeline(t, store).Submit(context.Background(), req)
	assert.ErrorIs(t, err, ErrNotFinishable)
}

func TestSubmit_UnknownItem(t *testing.T) {
	req := sessionRequest(primitive.NewObjectID().Hex())
	req.Checklists["cab"][0].ID = 99
	_, err := testPipeline(t, db.NewMemoryStore()).Submit(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestSubmit_InvalidVehicle(t *testing.T) {
	_, err := testPipeline(t, db.NewMemoryStore()).Submit(context.Background(), sessionRequest("not-an-id"))
	assert.ErrorIs(t, err, ErrInvalidTruck)
}

func TestSubmit_NonConformingObservation(t *testing.T) {
	req := sessionRequest(primitive.NewObjectID().Hex(), 4)
	req.Checklists["tires"][0].Observation = ""

	res, err := testPipeline(t, db.NewMemoryStore()).Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{`observation for "Front left" is empty`}, res.Warnings)

	_, err = testPipeline(t, db.NewMemoryStore(), RequireObservation(true)).Submit(context.Background(), req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{`observation for "Front left"`}, verr.Missing)
}

func TestSubmit_FailureRollsBackInTransaction(t *testing.T) {
	store := &flakyStore{MemoryStore: db.NewMemoryStore(), photoFailures: 1}
	ctx := context.Background()
	req := sessionRequest(primitive.NewObjectID().Hex(), 4)
	req.SubmissionID = "sub-tx"

	_, err := testPipeline(t, store).Submit(ctx, req)
	require.Error(t, err)
	all, err := store.FindInspections(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	res, err := testPipeline(t, store).Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.InspectionPartiallyConforming, res.Status)
}

func TestSubmit_RetryResumesPartialInspection(t *testing.T) {
	store := &flakyStore{MemoryStore: db.NewMemoryStore(), photoFailures: 1, plain: true}
	ctx := context.Background()
	req := sessionRequest(primitive.NewObjectID().Hex(), 4)
	req.SubmissionID = "sub-resume"
	p := testPipeline(t, store)

	_, err := p.Submit(ctx, req)
	require.ErrorContains(t, err, "insert photos")

	partial, err := store.FindInspectionBySubmission(ctx, "sub-resume")
	require.NoError(t, err)
	assert.Equal(t, models.InspectionInProgress, partial.Status)

	res, err := p.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, partial.ID.Hex(), res.InspectionID)
	assert.Equal(t, partial.ReferenceCode, res.ReferenceCode)

	all, err := store.FindInspections(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	items, err := store.FindItems(ctx, db.ItemQuery{InspectionID: &partial.ID})
	require.NoError(t, err)
	assert.Len(t, items, 6)
}

func TestSubmit_ReplaysCommittedSubmission(t *testing.T) {
	store := db.NewMemoryStore()
	ctx := context.Background()
	pub := new(MockPublisher)
	pub.On("PublishCompleted", mock.Anything, mock.MatchedBy(func(ev events.Completed) bool {
		return ev.Status == "non_conforming" && ev.Items == 6 && ev.NonConforming == 2
	})).Return(nil).Once()

	p := testPipeline(t, store, WithPublisher(pub))
	req := sessionRequest(primitive.NewObjectID().Hex(), 1, 2)
	req.SubmissionID = "sub-replay"

	first, err := p.Submit(ctx, req)
	require.NoError(t, err)
	second, err := p.Submit(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.InspectionID, second.InspectionID)
	assert.Equal(t, first.Status, second.Status)
	all, err := store.FindInspections(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	pub.AssertExpectations(t)
}

func TestSubmit_PublishFailureIsNotFatal(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("PublishCompleted", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	res, err := testPipeline(t, db.NewMemoryStore(), WithPublisher(pub)).
		Submit(context.Background(), sessionRequest(primitive.NewObjectID().Hex()))
	require.NoError(t, err)
	assert.Equal(t, models.InspectionConforming, res.Status)
	pub.AssertNumberOfCalls(t, "PublishCompleted", 1)
}

func TestSnapshot_Fallbacks(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	snap := Snapshot(models.FormData{TractorPlate: " AAA ", Route: " north "}, now)
	assert.Equal(t, "AAA", snap.Vehicle.TractorPlate)
	assert.Equal(t, "north", snap.Route)
	assert.Equal(t, "2026-01-02", snap.Dates.Issue)
	assert.Equal(t, "2026-01-02", snap.Dates.Inspection)
	assert.Equal(t, now, snap.InspectedAt)
}
