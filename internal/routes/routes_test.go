package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"drone_routes/internal/config"
	"drone_routes/internal/middleware"
	"drone_routes/internal/realtime"
	"drone_routes/internal/services"
)

const csvHeader = "file name,Date,Time,Time,AEX,Latitude,Longitude,Speed,Course,Magn,Altit,SPP,SRR,M-Lux,R Ir,G Ir,R Ir,I Ir,IBright,Shutter,Gain\n"

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *memStore) Upload(ctx context.Context, routeID uint, fileName string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("routes/%d/%s", routeID, fileName)
	s.objects[key] = data
	return key, nil
}

func (s *memStore) ResolveURL(ctx context.Context, key string) (string, error) {
	return "https://photos.test/" + key, nil
}

type testServer struct {
	router *gin.Engine
	auth   *middleware.Auth
	hub    *realtime.Hub
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, config.Migrate(db))

	hub := realtime.NewHub()
	t.Cleanup(hub.Close)
	auth := middleware.NewAuth("test-secret", time.Hour)

	r := SetupRouter(Dependencies{
		DB:             db,
		Routes:         services.NewRouteService(db, &memStore{objects: map[string][]byte{}}, hub, services.Options{Concurrency: 4}),
		Drones:         services.NewDroneService(db),
		Users:          services.NewUserService(db),
		Auth:           auth,
		Hub:            hub,
		MaxUploadBytes: 8 << 20,
	})
	return &testServer{router: r, auth: auth, hub: hub}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if s.token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req)
}

func (s *testServer) login(t *testing.T) {
	t.Helper()
	w := s.doJSON(t, http.MethodPost, "/api/auth/register", gin.H{"username": "pilot", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	s.token = out.Token
}

type upload struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func routeCSV(fileNames ...string) []byte {
	var b strings.Builder
	b.WriteString(csvHeader)
	for i, n := range fileNames {
		fmt.Fprintf(&b, "%s,2024-05-01,12:00:%02d,A,1.0,55.75%02d,37.61%02d,3.2,90,0.1,120.5,1,2,300,10,11,12,13,14,1/500,2\n", n, i, i, i)
	}
	return []byte(b.String())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/routes", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	s.login(t)

	w = s.doJSON(t, http.MethodPost, "/api/auth/register", gin.H{"username": "pilot", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.doJSON(t, http.MethodPost, "/api/auth/login", gin.H{"username": "pilot", "password": "wrong-one"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.doJSON(t, http.MethodPost, "/api/auth/login", gin.H{"username": "pilot", "password": "secret1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["token"])

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil))
	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]interface{})
	assert.Equal(t, "pilot", user["username"])
	assert.NotContains(t, user, "password")
}

func TestRouteLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	req := multipartRequest(t, "/api/routes", map[string]string{"name": "Field 7"},
		upload{"csv", "flight.csv", routeCSV("a.tif", "b.tif", "a.tif")},
		upload{"photos", "a.tif", []byte("tiff-a")},
	)
	w := s.do(t, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode(t, w)
	assert.Equal(t, "Field 7", created["name"])
	assert.Equal(t, "partial", created["status"])
	assert.EqualValues(t, 3, created["totalPoints"])
	assert.EqualValues(t, 2, created["pointsWithPhotos"])
	assert.EqualValues(t, 2, created["requiredPhotos"])
	assert.EqualValues(t, 1, created["uploadedPhotos"])
	assert.Equal(t, []interface{}{"b.tif"}, created["missingPhotos"])
	assert.Nil(t, created["droneId"])
	id := uint(created["id"].(float64))

	req = multipartRequest(t, fmt.Sprintf("/api/routes/%d/photos", id), nil,
		upload{"photos", "a.tif", []byte("tiff-a")},
		upload{"photos", "b.tif", []byte("tiff-b")},
	)
	w = s.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	added := decode(t, w)
	assert.Equal(t, "complete", added["status"])
	assert.EqualValues(t, 1, added["newPhotosAdded"])
	assert.Equal(t, []interface{}{}, added["stillMissingPhotos"])

	w = s.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/routes/%d", id), nil))
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	points := detail["points"].([]interface{})
	require.Len(t, points, 3)
	first := points[0].(map[string]interface{})
	assert.Equal(t, "a.tif", first["fileName"])
	assert.Equal(t, "55.7500", first["latitude"])
	assert.Equal(t, fmt.Sprintf("https://photos.test/routes/%d/a.tif", id), first["photoUrl"])
	sensor := first["sensorData"].(map[string]interface{})
	assert.Equal(t, "1/500", sensor["shutter"])
	geometry := detail["geometry"].(map[string]interface{})
	assert.Equal(t, "LineString", geometry["type"])
	assert.Greater(t, detail["distanceMeters"].(float64), 0.0)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/routes", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.NotContains(t, list[0], "points")

	w = s.do(t, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/routes/%d", id), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/routes/%d", id), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRouteValidation(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	w := s.do(t, multipartRequest(t, "/api/routes", nil, upload{"photos", "a.tif", []byte("x")}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "CSV file is required", decode(t, w)["error"])

	w = s.do(t, multipartRequest(t, "/api/routes", nil, upload{"csv", "f.csv", []byte("a,b,c\n1,2,3\n")}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "CSV parsing failed")

	w = s.do(t, multipartRequest(t, "/api/routes", nil, upload{"csv", "f.csv", []byte(csvHeader)}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, multipartRequest(t, "/api/routes", map[string]string{"droneId": "DR-404"},
		upload{"csv", "f.csv", routeCSV("a.tif")}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/routes", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = s.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, multipartRequest(t, "/api/routes/999/photos", nil, upload{"photos", "a.tif", []byte("x")}))
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/routes/abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDroneEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	w := s.doJSON(t, http.MethodPost, "/api/drones", gin.H{"droneId": "DR-1", "model": "M300", "serialNumber": "SN-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 100, decode(t, w)["currentBatteryCharge"])

	w = s.doJSON(t, http.MethodPost, "/api/drones", gin.H{"droneId": "DR-1", "model": "M300", "serialNumber": "SN-2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.doJSON(t, http.MethodPost, "/api/drones", gin.H{"droneId": "DR-3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.doJSON(t, http.MethodPut, "/api/drones/DR-1", gin.H{"currentBatteryCharge": 150})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.doJSON(t, http.MethodPut, "/api/drones/DR-1", gin.H{"currentBatteryCharge": 40})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 40, decode(t, w)["currentBatteryCharge"])

	w = s.do(t, multipartRequest(t, "/api/routes", nil, upload{"csv", "f.csv", routeCSV("a.tif")}))
	require.Equal(t, http.StatusCreated, w.Code)
	routeID := uint(decode(t, w)["id"].(float64))

	w = s.do(t, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/drones/DR-1/assign-route/%d", routeID), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	route := decode(t, w)["route"].(map[string]interface{})
	assert.Equal(t, "DR-1", route["droneId"])

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/drones/DR-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["routes"], 1)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/drones", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/drones/DR-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/routes/%d", routeID), nil))
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/drones/DR-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/drones/DR-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouteStatusSocket(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	w := s.do(t, multipartRequest(t, "/api/routes", nil, upload{"csv", "f.csv", routeCSV("a.tif", "b.tif")}))
	require.Equal(t, http.StatusCreated, w.Code)
	routeID := uint(decode(t, w)["id"].(float64))

	srv := httptest.NewServer(s.router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/ws/routes/%d", routeID)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+s.token, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snapshot realtime.StatusEvent
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, routeID, snapshot.RouteID)
	assert.Equal(t, "processing", snapshot.Status)
	assert.Equal(t, []string{"a.tif", "b.tif"}, snapshot.MissingPhotos)

	require.Eventually(t, func() bool { return s.hub.Subscribers(routeID) == 1 }, 2*time.Second, 10*time.Millisecond)

	w = s.do(t, multipartRequest(t, fmt.Sprintf("/api/routes/%d/photos", routeID), nil,
		upload{"photos", "a.tif", []byte("tiff-a")}))
	require.Equal(t, http.StatusOK, w.Code)

	var update realtime.StatusEvent
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "partial", update.Status)
	assert.Equal(t, 1, update.PointsWithPhotos)
	assert.Equal(t, []string{"b.tif"}, update.MissingPhotos)
}
