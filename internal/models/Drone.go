package models

import (
	"time"
)

// Drone is an aircraft that flies routes.
type Drone struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	DroneID              string `gorm:"uniqueIndex;not null" json:"droneId"`
	Model                string `gorm:"not null" json:"model"`
	SerialNumber         string `gorm:"uniqueIndex;not null" json:"serialNumber"`
	CurrentBatteryCharge int    `gorm:"not null" json:"currentBatteryCharge"`
	TotalFlightTime      int    `gorm:"not null" json:"totalFlightTime"` // minutes
}
