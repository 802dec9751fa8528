// Package services holds the route, drone and user operations behind the HTTP API.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drone_routes/internal/geo"
	"drone_routes/internal/metrics"
	"drone_routes/internal/models"
	"drone_routes/internal/photos"
	"drone_routes/internal/realtime"
	"drone_routes/internal/telemetry"
)

const (
	defaultConcurrency   = 16
	defaultUploadTimeout = 30 * time.Second

	// Keeps one INSERT well under the bind variable limits of sqlite and postgres.
	pointBatchSize = 500
)

// PhotoStore keeps route photos. objectstore.Gateway is the production implementation.
type PhotoStore interface {
	Upload(ctx context.Context, routeID uint, fileName string, data []byte, contentType string) (string, error)
	ResolveURL(ctx context.Context, objectKey string) (string, error)
}

// StatusPublisher is told about every persisted photo batch.
type StatusPublisher interface {
	Publish(ev realtime.StatusEvent)
}

// Options tunes the photo fan-out.
type Options struct {
	// Concurrency caps in-flight uploads and URL resolutions per request.
	Concurrency int
	// UploadTimeout bounds a single upload.
	UploadTimeout time.Duration
}

type RouteService struct {
	db        *gorm.DB
	store     PhotoStore
	publisher StatusPublisher
	opts      Options
}

// NewRouteService wires the route operations. publisher may be nil.
func NewRouteService(db *gorm.DB, store PhotoStore, publisher StatusPublisher, opts Options) *RouteService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = defaultUploadTimeout
	}
	return &RouteService{db: db, store: store, publisher: publisher, opts: opts}
}

// CreateRouteInput is one route upload: the telemetry CSV and its photos.
type CreateRouteInput struct {
	CSV      []byte
	Photos   []photos.File
	Name     string
	DroneRef string
}

// RouteResult is a route after a photo batch was applied.
type RouteResult struct {
	Route *models.Route
	// RequiredPhotos are the distinct file names the points reference.
	RequiredPhotos []string
	// UploadedPhotos are the distinct files stored by this batch.
	UploadedPhotos []string
	// MissingPhotos are the distinct file names still without a stored photo.
	MissingPhotos []string
}

// RouteView is a route ready for display.
type RouteView struct {
	Route *models.Route
	// PhotoURLs is parallel to Route.Points; nil entries have no usable photo.
	PhotoURLs []*string
	GeoJSON   string
}

// CreateRoute parses the CSV, persists the route and uploads the photos that
// match its points. Upload failures leave points without photos; they never
// fail the call.
func (s *RouteService) CreateRoute(ctx context.Context, in CreateRouteInput) (*RouteResult, error) {
	points, err := telemetry.ParseBytes(in.CSV)
	if err != nil {
		return nil, BadRequest("CSV parsing failed: "+err.Error(), err)
	}
	if len(points) == 0 {
		return nil, BadRequest("No valid data points found in CSV", nil)
	}

	var drone *models.Drone
	if ref := strings.TrimSpace(in.DroneRef); ref != "" {
		drone, err = findDrone(s.db.WithContext(ctx), ref)
		if err != nil {
			return nil, err
		}
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = fmt.Sprintf("Route_%d", time.Now().UnixMilli())
	}

	geometry, err := geo.PathGeometry(points)
	if err != nil {
		logrus.WithError(err).WithField("route", name).Warn("Could not build route geometry")
		geometry = nil
	}

	route := &models.Route{
		Name:           name,
		Points:         points,
		Geometry:       geometry,
		DistanceMeters: geo.PathLength(points),
	}
	if drone != nil {
		route.DroneID = &drone.ID
	}
	if err := s.createRoute(ctx, route); err != nil {
		return nil, Internal("could not save route", err)
	}
	route.Drone = drone

	set := photos.NewSet(in.Photos)
	logrus.WithFields(logrus.Fields{
		"route_id": route.ID,
		"points":   len(points),
		"photos":   len(set),
		"size":     humanize.Bytes(set.TotalBytes()),
	}).Info("Created route")

	uploaded, err := s.attachPhotos(ctx, route, set)
	if err != nil {
		return nil, err
	}
	metrics.RoutesCreatedTotal.WithLabelValues(string(route.Status)).Inc()

	return &RouteResult{
		Route:          route,
		RequiredPhotos: photos.RequiredFileNames(route.Points),
		UploadedPhotos: uploaded,
		MissingPhotos:  photos.StillMissing(route.Points),
	}, nil
}

// createRoute inserts the route row and then its points in batches.
func (s *RouteService) createRoute(ctx context.Context, route *models.Route) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(route).Error; err != nil {
			return err
		}
		if len(route.Points) == 0 {
			return nil
		}
		for i := range route.Points {
			route.Points[i].RouteID = route.ID
		}
		return tx.CreateInBatches(&route.Points, pointBatchSize).Error
	})
}

// AddPhotos uploads photos for the points of an existing route that have none yet.
func (s *RouteService) AddPhotos(ctx context.Context, routeID uint, files []photos.File) (*RouteResult, error) {
	route, err := s.loadRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, BadRequest("No photos provided", nil)
	}

	set := photos.NewSet(files)
	logrus.WithFields(logrus.Fields{
		"route_id": route.ID,
		"photos":   len(set),
		"size":     humanize.Bytes(set.TotalBytes()),
	}).Info("Adding photos to route")

	uploaded, err := s.attachPhotos(ctx, route, set)
	if err != nil {
		return nil, err
	}
	return &RouteResult{
		Route:          route,
		RequiredPhotos: photos.RequiredFileNames(route.Points),
		UploadedPhotos: uploaded,
		MissingPhotos:  photos.StillMissing(route.Points),
	}, nil
}

// attachPhotos uploads one object per matched file name, marks the points
// that use it and persists the changed points together with the route totals.
func (s *RouteService) attachPhotos(ctx context.Context, route *models.Route, set photos.Set) ([]string, error) {
	matches := photos.Pending(route.Points, set)
	stored := make([]bool, len(matches))

	started := time.Now()
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for i, m := range matches {
		g.Go(func() error {
			key, ok := s.upload(ctx, route.ID, m)
			if !ok {
				return nil
			}
			// indices are disjoint between tasks
			for _, idx := range m.Indices {
				route.Points[idx].PhotoObjectKey = key
				route.Points[idx].HasPhoto = true
			}
			stored[i] = true
			return nil
		})
	}
	_ = g.Wait()

	uploaded := []string{}
	var changed []int
	for i, m := range matches {
		if stored[i] {
			uploaded = append(uploaded, m.FileName)
			changed = append(changed, m.Indices...)
		}
	}

	if len(changed) > 0 {
		// objects are already in the bucket, record them even if the caller went away
		if err := s.persistPhotos(context.WithoutCancel(ctx), route, changed); err != nil {
			return nil, Internal("could not save photo state", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"route_id": route.ID,
		"matched":  len(matches),
		"uploaded": len(uploaded),
		"status":   route.Status,
		"took":     time.Since(started).Round(time.Millisecond),
	}).Info("Photo batch complete")

	s.publish(route)
	return uploaded, nil
}

func (s *RouteService) upload(ctx context.Context, routeID uint, m photos.Match) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.UploadTimeout)
	defer cancel()

	start := time.Now()
	key, err := s.store.Upload(ctx, routeID, m.FileName, m.File.Data, m.File.ContentType)
	metrics.RecordUpload(err, time.Since(start))
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"route_id": routeID,
			"file":     m.FileName,
		}).Warn("Photo upload failed")
		return "", false
	}

	logrus.WithFields(logrus.Fields{
		"route_id": routeID,
		"file":     m.FileName,
		"size":     humanize.Bytes(uint64(len(m.File.Data))),
		"points":   len(m.Indices),
	}).Debug("Photo uploaded")
	return key, true
}

func (s *RouteService) persistPhotos(ctx context.Context, route *models.Route, changed []int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, idx := range changed {
			p := route.Points[idx]
			err := tx.Model(&models.FlightPoint{}).
				Where("id = ?", p.ID).
				Updates(map[string]interface{}{
					"photo_object_key": p.PhotoObjectKey,
					"has_photo":        true,
				}).Error
			if err != nil {
				return err
			}
		}
		// BeforeSave recomputes the totals from the loaded points.
		return tx.Omit(clause.Associations).Save(route).Error
	})
}

func (s *RouteService) publish(route *models.Route) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(statusEvent(route))
}

func statusEvent(route *models.Route) realtime.StatusEvent {
	return realtime.StatusEvent{
		RouteID:          route.ID,
		Status:           string(route.Status),
		TotalPoints:      route.TotalPoints,
		PointsWithPhotos: route.PointsWithPhotos,
		MissingPhotos:    photos.StillMissing(route.Points),
	}
}

// GetRoute loads a route with its points and a fresh URL for every stored photo.
func (s *RouteService) GetRoute(ctx context.Context, routeID uint) (*RouteView, error) {
	route, err := s.loadRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	urls := make([]*string, len(route.Points))
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for i := range route.Points {
		p := &route.Points[i]
		if !p.HasPhoto || p.PhotoObjectKey == "" {
			continue
		}
		g.Go(func() error {
			u, err := s.store.ResolveURL(ctx, p.PhotoObjectKey)
			if err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"route_id": route.ID,
					"file":     p.FileName,
				}).Warn("Could not resolve photo URL")
				return nil
			}
			urls[i] = &u
			return nil
		})
	}
	_ = g.Wait()

	geoJSON, err := geo.ToGeoJSON(route.Geometry)
	if err != nil {
		logrus.WithError(err).WithField("route_id", route.ID).Warn("Stored route geometry is unreadable")
	}

	return &RouteView{Route: route, PhotoURLs: urls, GeoJSON: geoJSON}, nil
}

// ListRoutes returns route summaries, newest first.
func (s *RouteService) ListRoutes(ctx context.Context) ([]models.Route, error) {
	var routes []models.Route
	err := s.db.WithContext(ctx).
		Preload("Drone").
		Omit("geometry").
		Order("created_at DESC").
		Find(&routes).Error
	if err != nil {
		return nil, Internal("could not list routes", err)
	}
	return routes, nil
}

// DeleteRoute removes a route and its points. Stored photos stay in the bucket.
func (s *RouteService) DeleteRoute(ctx context.Context, routeID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var route models.Route
		if err := tx.First(&route, routeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("Route not found")
			}
			return Internal("could not load route", err)
		}
		if err := tx.Where("route_id = ?", route.ID).Delete(&models.FlightPoint{}).Error; err != nil {
			return Internal("could not delete route points", err)
		}
		if err := tx.Delete(&route).Error; err != nil {
			return Internal("could not delete route", err)
		}
		logrus.WithField("route_id", route.ID).Info("Deleted route")
		return nil
	})
}

func (s *RouteService) loadRoute(ctx context.Context, routeID uint) (*models.Route, error) {
	var route models.Route
	err := s.db.WithContext(ctx).
		Preload("Drone").
		Preload("Points", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&route, routeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("Route not found")
		}
		return nil, Internal("could not load route", err)
	}
	if route.Points == nil {
		route.Points = []models.FlightPoint{}
	}
	return &route, nil
}

// Status returns the current photo state of a route as a status event.
func (s *RouteService) Status(ctx context.Context, routeID uint) (*realtime.StatusEvent, error) {
	route, err := s.loadRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	ev := statusEvent(route)
	return &ev, nil
}
