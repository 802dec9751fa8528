package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"drone_routes/internal/models"
)

type DroneService struct {
	db *gorm.DB
}

func NewDroneService(db *gorm.DB) *DroneService {
	return &DroneService{db: db}
}

// DroneInput creates a drone. Nil counters take their defaults.
type DroneInput struct {
	DroneID              string `json:"droneId" binding:"required"`
	Model                string `json:"model" binding:"required"`
	SerialNumber         string `json:"serialNumber" binding:"required"`
	CurrentBatteryCharge *int   `json:"currentBatteryCharge"`
	TotalFlightTime      *int   `json:"totalFlightTime"`
}

// DroneUpdate changes only the fields that are set.
type DroneUpdate struct {
	Model                *string `json:"model"`
	CurrentBatteryCharge *int    `json:"currentBatteryCharge"`
	TotalFlightTime      *int    `json:"totalFlightTime"`
}

func validateCounters(battery, flightTime *int) error {
	if battery != nil && (*battery < 0 || *battery > 100) {
		return BadRequest("currentBatteryCharge must be between 0 and 100", nil)
	}
	if flightTime != nil && *flightTime < 0 {
		return BadRequest("totalFlightTime cannot be negative", nil)
	}
	return nil
}

func (s *DroneService) Create(ctx context.Context, in DroneInput) (*models.Drone, error) {
	in.DroneID = strings.TrimSpace(in.DroneID)
	in.Model = strings.TrimSpace(in.Model)
	in.SerialNumber = strings.TrimSpace(in.SerialNumber)
	if in.DroneID == "" || in.Model == "" || in.SerialNumber == "" {
		return nil, BadRequest("droneId, model, and serialNumber are required", nil)
	}
	if err := validateCounters(in.CurrentBatteryCharge, in.TotalFlightTime); err != nil {
		return nil, err
	}

	drone := models.Drone{
		DroneID:              in.DroneID,
		Model:                in.Model,
		SerialNumber:         in.SerialNumber,
		CurrentBatteryCharge: 100,
	}
	if in.CurrentBatteryCharge != nil {
		drone.CurrentBatteryCharge = *in.CurrentBatteryCharge
	}
	if in.TotalFlightTime != nil {
		drone.TotalFlightTime = *in.TotalFlightTime
	}

	if err := s.db.WithContext(ctx).Create(&drone).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, Conflict("droneId or serialNumber already exists", err)
		}
		return nil, Internal("could not create drone", err)
	}
	logrus.WithFields(logrus.Fields{"drone_id": drone.DroneID, "id": drone.ID}).Info("Registered drone")
	return &drone, nil
}

// List returns all drones, newest first.
func (s *DroneService) List(ctx context.Context) ([]models.Drone, error) {
	var drones []models.Drone
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&drones).Error; err != nil {
		return nil, Internal("could not list drones", err)
	}
	return drones, nil
}

// Get looks a drone up by primary key or droneId code and returns the
// routes it flew, newest first.
func (s *DroneService) Get(ctx context.Context, ref string) (*models.Drone, []models.Route, error) {
	db := s.db.WithContext(ctx)
	drone, err := findDrone(db, ref)
	if err != nil {
		return nil, nil, err
	}

	var routes []models.Route
	err = db.Omit("geometry").
		Where("drone_id = ?", drone.ID).
		Order("created_at DESC").
		Find(&routes).Error
	if err != nil {
		return nil, nil, Internal("could not list drone routes", err)
	}
	return drone, routes, nil
}

func (s *DroneService) Update(ctx context.Context, ref string, in DroneUpdate) (*models.Drone, error) {
	if err := validateCounters(in.CurrentBatteryCharge, in.TotalFlightTime); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	drone, err := findDrone(db, ref)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Model != nil {
		model := strings.TrimSpace(*in.Model)
		if model == "" {
			return nil, BadRequest("model cannot be empty", nil)
		}
		updates["model"] = model
	}
	if in.CurrentBatteryCharge != nil {
		updates["current_battery_charge"] = *in.CurrentBatteryCharge
	}
	if in.TotalFlightTime != nil {
		updates["total_flight_time"] = *in.TotalFlightTime
	}
	if len(updates) == 0 {
		return drone, nil
	}

	if err := db.Model(drone).Updates(updates).Error; err != nil {
		return nil, Internal("could not update drone", err)
	}
	if err := db.First(drone, drone.ID).Error; err != nil {
		return nil, Internal("could not reload drone", err)
	}
	return drone, nil
}

// Delete removes a drone that no route references.
func (s *DroneService) Delete(ctx context.Context, ref string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		drone, err := findDrone(tx, ref)
		if err != nil {
			return err
		}

		var routes int64
		if err := tx.Model(&models.Route{}).Where("drone_id = ?", drone.ID).Count(&routes).Error; err != nil {
			return Internal("could not count drone routes", err)
		}
		if routes > 0 {
			return BadRequest("Cannot delete drone with assigned routes. Please reassign or delete routes first.", nil)
		}

		if err := tx.Delete(drone).Error; err != nil {
			return Internal("could not delete drone", err)
		}
		logrus.WithField("drone_id", drone.DroneID).Info("Deleted drone")
		return nil
	})
}

// AssignRoute records that the drone flew the route.
func (s *DroneService) AssignRoute(ctx context.Context, ref string, routeID uint) (*models.Route, error) {
	var route models.Route
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		drone, err := findDrone(tx, ref)
		if err != nil {
			return err
		}
		if err := tx.Omit("geometry").First(&route, routeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("Route not found")
			}
			return Internal("could not load route", err)
		}
		if err := tx.Model(&route).Update("drone_id", drone.ID).Error; err != nil {
			return Internal("could not assign drone", err)
		}
		route.DroneID = &drone.ID
		route.Drone = drone
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &route, nil
}

// findDrone accepts either the numeric primary key or the droneId code.
func findDrone(db *gorm.DB, ref string) (*models.Drone, error) {
	ref = strings.TrimSpace(ref)
	var drone models.Drone
	q := db.Where("drone_id = ?", ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		q = db.Where("id = ? OR drone_id = ?", id, ref)
	}
	if err := q.First(&drone).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("Drone not found")
		}
		return nil, Internal("could not load drone", err)
	}
	return &drone, nil
}
