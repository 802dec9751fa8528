package models

import (
	"time"

	"gorm.io/gorm"
)

// RouteStatus reports how many of a route's points have a stored photo.
type RouteStatus string

const (
	RouteStatusProcessing RouteStatus = "processing"
	RouteStatusPartial    RouteStatus = "partial"
	RouteStatusComplete   RouteStatus = "complete"
)

// Route is one uploaded flight: the ordered telemetry points of a CSV plus
// their photo completion state.
type Route struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Name    string `gorm:"not null" json:"name"`
	DroneID *uint  `gorm:"index" json:"droneId"`
	Drone   *Drone `gorm:"foreignKey:DroneID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"drone,omitempty"`

	TotalPoints      int         `json:"totalPoints"`
	PointsWithPhotos int         `json:"pointsWithPhotos"`
	Status           RouteStatus `gorm:"type:varchar(16);default:'processing'" json:"status"`

	// Flight path stored as EWKB LineString (SRID 4326), lon/lat order.
	Geometry       []byte  `gorm:"type:bytea" json:"-"`
	DistanceMeters float64 `json:"distanceMeters"`

	Points []FlightPoint `gorm:"foreignKey:RouteID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"points,omitempty"`
}

// DeriveStatus maps photo counts onto a route status.
func DeriveStatus(totalPoints, pointsWithPhotos int) RouteStatus {
	switch {
	case pointsWithPhotos == 0:
		return RouteStatusProcessing
	case totalPoints > 0 && pointsWithPhotos == totalPoints:
		return RouteStatusComplete
	default:
		return RouteStatusPartial
	}
}

// Recompute refreshes the counters and status from the loaded points.
func (r *Route) Recompute() {
	r.TotalPoints = len(r.Points)
	r.PointsWithPhotos = 0
	for i := range r.Points {
		if r.Points[i].HasPhoto {
			r.PointsWithPhotos++
		}
	}
	r.Status = DeriveStatus(r.TotalPoints, r.PointsWithPhotos)
}

// BeforeSave keeps the aggregates in step with the points on every save.
// Routes loaded without their points are left untouched.
func (r *Route) BeforeSave(tx *gorm.DB) error {
	if r.Points != nil {
		r.Recompute()
	}
	return nil
}
