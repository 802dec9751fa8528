package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"drone_routes/internal/models"
	"drone_routes/internal/photos"
	"drone_routes/internal/realtime"
)

const csvHeader = "file name,Date,Time,Time,AEX,Latitude,Longitude,Speed,Course,Magn,Altit,SPP,SRR,M-Lux,R Ir,G Ir,R Ir,I Ir,IBright,Shutter,Gain\n"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every new connection to file::memory: is a fresh database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Drone{}, &models.Route{}, &models.FlightPoint{}))
	return db
}

// csvRow renders one telemetry row with the given file name and a position
// derived from i.
func csvRow(fileName string, i int) string {
	return fmt.Sprintf("%s,2024-05-01,12:00:%02d,A,1.0,55.75%02d,37.61%02d,3.2,90,0.1,120.5,1,2,300,10,11,12,13,14,1/500,2\n",
		fileName, i%60, i%100, i%100)
}

func buildCSV(fileNames ...string) []byte {
	var b strings.Builder
	b.WriteString(csvHeader)
	for i, name := range fileNames {
		b.WriteString(csvRow(name, i))
	}
	return []byte(b.String())
}

func photoFiles(names ...string) []photos.File {
	files := make([]photos.File, 0, len(names))
	for _, n := range names {
		files = append(files, photos.File{Name: n, ContentType: "image/tiff", Data: []byte("tiff:" + n)})
	}
	return files
}

// fakeStore records uploads and fails the names listed in failOn.
type fakeStore struct {
	mu         sync.Mutex
	uploads    map[string]int
	failOn     map[string]bool
	missingURL map[string]bool
}

func newFakeStore(failOn ...string) *fakeStore {
	s := &fakeStore{
		uploads:    map[string]int{},
		failOn:     map[string]bool{},
		missingURL: map[string]bool{},
	}
	for _, n := range failOn {
		s.failOn[n] = true
	}
	return s
}

func (s *fakeStore) Upload(ctx context.Context, routeID uint, fileName string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[fileName] {
		return "", errors.New("backend unavailable")
	}
	key := fmt.Sprintf("routes/%d/%s", routeID, fileName)
	s.uploads[key]++
	return key, nil
}

func (s *fakeStore) ResolveURL(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missingURL[key] {
		return "", errors.New("no such key")
	}
	return "https://photos.test/" + key, nil
}

func (s *fakeStore) totalUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.uploads {
		n += c
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.StatusEvent
}

func (p *recordingPublisher) Publish(ev realtime.StatusEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) last() realtime.StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

// stallingStore blocks uploads of the listed names until their context ends.
type stallingStore struct {
	*fakeStore
	stall map[string]bool
}

func (s *stallingStore) Upload(ctx context.Context, routeID uint, fileName string, data []byte, contentType string) (string, error) {
	if s.stall[fileName] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.fakeStore.Upload(ctx, routeID, fileName, data, contentType)
}

// cancelingStore cancels the request context once an upload has been stored.
type cancelingStore struct {
	*fakeStore
	cancel context.CancelFunc
}

func (s *cancelingStore) Upload(ctx context.Context, routeID uint, fileName string, data []byte, contentType string) (string, error) {
	key, err := s.fakeStore.Upload(ctx, routeID, fileName, data, contentType)
	s.cancel()
	return key, err
}
