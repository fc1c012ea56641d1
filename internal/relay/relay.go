// Package relay hands photos captured by the camera view back to the
// checklist item that asked for them.
package relay

import (
	"context"
	"errors"

	"github.com/ukydev/truck-inspection/internal/draft"
)

var ErrNoPhotos = errors.New("relay: no photos to deliver")

// Marker identifies the checklist item waiting for photos.
type Marker struct {
	VehicleID  string `json:"vehicleId"`
	CategoryID string `json:"categoryId"`
	ItemID     int    `json:"itemId"`
}

// Store is the subset of draft.Store used by the relay.
type Store interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
	Remove(ctx context.Context, key string) error
}

var _ Store = (*draft.Store)(nil)

// Relay is a single-slot mailbox: one pending request at a time, the last
// write wins.
type Relay struct {
	store Store
}

func New(store Store) *Relay {
	return &Relay{store: store}
}

// Request records which item the next capture belongs to. Photos delivered
// for an earlier request and never consumed are dropped.
func (r *Relay) Request(ctx context.Context, m Marker) error {
	if err := r.store.Remove(ctx, draft.PhotosKey); err != nil {
		return err
	}
	return r.store.Save(ctx, draft.PhotoRequestKey, m)
}

// Pending returns the outstanding marker, if any.
func (r *Relay) Pending(ctx context.Context) (Marker, bool, error) {
	var m Marker
	found, err := r.store.Load(ctx, draft.PhotoRequestKey, &m)
	return m, found, err
}

// Deliver stores the captured photos for the pending request.
func (r *Relay) Deliver(ctx context.Context, photos []string) error {
	if len(photos) == 0 {
		return ErrNoPhotos
	}
	return r.store.Save(ctx, draft.PhotosKey, photos)
}

// Consume returns the delivered photos when the pending marker belongs to
// vehicleID and categoryID, and clears both keys so the photos are applied
// once. A marker for another view is left in place.
func (r *Relay) Consume(ctx context.Context, vehicleID, categoryID string) (int, []string, bool, error) {
	m, found, err := r.Pending(ctx)
	if err != nil || !found {
		return 0, nil, false, err
	}
	if m.VehicleID != vehicleID || m.CategoryID != categoryID {
		return 0, nil, false, nil
	}

	var photos []string
	found, err = r.store.Load(ctx, draft.PhotosKey, &photos)
	if err != nil || !found || len(photos) == 0 {
		return 0, nil, false, err
	}

	if err := r.Clear(ctx); err != nil {
		return 0, nil, false, err
	}
	return m.ItemID, photos, true, nil
}

// Clear drops any pending request and delivered photos.
func (r *Relay) Clear(ctx context.Context) error {
	return errors.Join(
		r.store.Remove(ctx, draft.PhotoRequestKey),
		r.store.Remove(ctx, draft.PhotosKey),
	)
}
