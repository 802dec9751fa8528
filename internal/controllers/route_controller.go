package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"drone_routes/internal/models"
	"drone_routes/internal/photos"
	"drone_routes/internal/services"
)

const maxPhotosPerRequest = 1000

// RouteSummary is the list and create view of a route.
type RouteSummary struct {
	ID               uint          `json:"id"`
	Name             string        `json:"name"`
	DroneID          *string       `json:"droneId"`
	Drone            *models.Drone `json:"drone,omitempty"`
	Status           string        `json:"status"`
	TotalPoints      int           `json:"totalPoints"`
	PointsWithPhotos int           `json:"pointsWithPhotos"`
	DistanceMeters   float64       `json:"distanceMeters"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// SensorData groups the camera and light sensor readings of a point.
type SensorData struct {
	AEX     string `json:"aex"`
	SPP     string `json:"spp"`
	SRR     string `json:"srr"`
	MLux    string `json:"mLux"`
	RIr1    string `json:"rIr1"`
	GIr     string `json:"gIr"`
	RIr2    string `json:"rIr2"`
	IIr     string `json:"iIr"`
	IBright string `json:"iBright"`
	Shutter string `json:"shutter"`
	Gain    string `json:"gain"`
	Magn    string `json:"magn"`
}

// PointResponse is one point of the route detail view.
type PointResponse struct {
	FileName   string     `json:"fileName"`
	Date       string     `json:"date"`
	Time       string     `json:"time"`
	TimeStatus string     `json:"timeStatus"`
	Latitude   string     `json:"latitude"`
	Longitude  string     `json:"longitude"`
	Altitude   string     `json:"altitude"`
	Speed      string     `json:"speed"`
	Course     string     `json:"course"`
	SensorData SensorData `json:"sensorData"`
	HasPhoto   bool       `json:"hasPhoto"`
	PhotoURL   *string    `json:"photoUrl"`
}

// RouteDetail is the full route view.
type RouteDetail struct {
	RouteSummary
	Geometry json.RawMessage `json:"geometry"`
	Points   []PointResponse `json:"points"`
}

func toRouteSummary(r *models.Route) RouteSummary {
	s := RouteSummary{
		ID:               r.ID,
		Name:             r.Name,
		Drone:            r.Drone,
		Status:           string(r.Status),
		TotalPoints:      r.TotalPoints,
		PointsWithPhotos: r.PointsWithPhotos,
		DistanceMeters:   r.DistanceMeters,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.Drone != nil {
		code := r.Drone.DroneID
		s.DroneID = &code
	}
	return s
}

func toRouteDetail(v *services.RouteView) RouteDetail {
	d := RouteDetail{
		RouteSummary: toRouteSummary(v.Route),
		Points:       make([]PointResponse, len(v.Route.Points)),
	}
	if v.GeoJSON != "" {
		d.Geometry = json.RawMessage(v.GeoJSON)
	}
	for i, p := range v.Route.Points {
		d.Points[i] = PointResponse{
			FileName:   p.FileName,
			Date:       p.Date,
			Time:       p.Time,
			TimeStatus: p.TimeStatus,
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
			Altitude:   p.Altitude,
			Speed:      p.Speed,
			Course:     p.Course,
			SensorData: SensorData{
				AEX:     p.AEX,
				SPP:     p.SPP,
				SRR:     p.SRR,
				MLux:    p.MLux,
				RIr1:    p.RIr1,
				GIr:     p.GIr,
				RIr2:    p.RIr2,
				IIr:     p.IIr,
				IBright: p.IBright,
				Shutter: p.Shutter,
				Gain:    p.Gain,
				Magn:    p.Magn,
			},
			HasPhoto: p.HasPhoto,
			PhotoURL: v.PhotoURLs[i],
		}
	}
	return d
}

// RouteController serves the /api/routes endpoints.
type RouteController struct {
	routes         *services.RouteService
	maxUploadBytes int64
}

func NewRouteController(routes *services.RouteService, maxUploadBytes int64) *RouteController {
	return &RouteController{routes: routes, maxUploadBytes: maxUploadBytes}
}

// CreateRoute accepts a multipart upload with one csv file and any number of photos.
func (rc *RouteController) CreateRoute(c *gin.Context) {
	form, ok := rc.multipartForm(c)
	if !ok {
		return
	}

	csvFiles := form.File["csv"]
	if len(csvFiles) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CSV file is required"})
		return
	}
	csvData, err := readFile(csvFiles[0])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read CSV file"})
		return
	}

	files, ok := readPhotos(c, form)
	if !ok {
		return
	}

	requestLog(c).WithFields(logrus.Fields{
		"csv":    csvFiles[0].Filename,
		"photos": len(files),
	}).Info("Processing route upload")

	res, err := rc.routes.CreateRoute(c.Request.Context(), services.CreateRouteInput{
		CSV:      csvData,
		Photos:   files,
		Name:     formValue(form, "name"),
		DroneRef: formValue(form, "droneId"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	summary := toRouteSummary(res.Route)
	c.JSON(http.StatusCreated, gin.H{
		"id":               summary.ID,
		"name":             summary.Name,
		"droneId":          summary.DroneID,
		"drone":            summary.Drone,
		"status":           summary.Status,
		"totalPoints":      summary.TotalPoints,
		"pointsWithPhotos": summary.PointsWithPhotos,
		"requiredPhotos":   len(res.RequiredPhotos),
		"uploadedPhotos":   len(res.UploadedPhotos),
		"missingPhotos":    res.MissingPhotos,
		"createdAt":        summary.CreatedAt,
	})
}

// AddPhotos uploads photos for points of an existing route that have none.
func (rc *RouteController) AddPhotos(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	form, ok := rc.multipartForm(c)
	if !ok {
		return
	}
	files, ok := readPhotos(c, form)
	if !ok {
		return
	}

	res, err := rc.routes.AddPhotos(c.Request.Context(), id, files)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                 res.Route.ID,
		"status":             res.Route.Status,
		"totalPoints":        res.Route.TotalPoints,
		"pointsWithPhotos":   res.Route.PointsWithPhotos,
		"newPhotosAdded":     len(res.UploadedPhotos),
		"stillMissingPhotos": res.MissingPhotos,
	})
}

// GetRoute returns a route with its points and photo URLs.
func (rc *RouteController) GetRoute(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, err := rc.routes.GetRoute(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRouteDetail(view))
}

// ListRoutes returns route summaries, newest first.
func (rc *RouteController) ListRoutes(c *gin.Context) {
	routes, err := rc.routes.ListRoutes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]RouteSummary, 0, len(routes))
	for i := range routes {
		out = append(out, toRouteSummary(&routes[i]))
	}
	c.JSON(http.StatusOK, out)
}

// DeleteRoute removes a route and its points.
func (rc *RouteController) DeleteRoute(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := rc.routes.DeleteRoute(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Route deleted successfully"})
}

func (rc *RouteController) multipartForm(c *gin.Context) (*multipart.Form, bool) {
	if rc.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, rc.maxUploadBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit)})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a multipart/form-data upload"})
		return nil, false
	}
	return form, true
}

func readPhotos(c *gin.Context, form *multipart.Form) ([]photos.File, bool) {
	headers := form.File["photos"]
	if len(headers) > maxPhotosPerRequest {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("At most %d photos per request", maxPhotosPerRequest)})
		return nil, false
	}
	files := make([]photos.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readFile(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read photo " + fh.Filename})
			return nil, false
		}
		files = append(files, photos.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, true
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}
