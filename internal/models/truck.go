package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// Truck represents the vehicle an inspection session is opened for.
type Truck struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"nome" json:"name"`
	TractorPlate string             `bson:"tractor_plate" json:"tractor_plate"`
	TrailerPlate string             `bson:"trailer_plate" json:"trailer_plate"`
	VehicleType  string             `bson:"vehicle_type" json:"vehicle_type"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}
