package service

import (
	"context"
	"sync"
	"time"

	"github.com/examsmart/examsmart-backend/internal/detection"
	"github.com/examsmart/examsmart-backend/internal/vlm"
	"github.com/redis/go-redis/v9"
)

const statusCheckTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RedisPinger adapts a Redis client to Pinger.
func RedisPinger(rdb *redis.Client) Pinger {
	return PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
}

// SystemStatus reports the health of every dependency.
type SystemStatus struct {
	Status    string    `json:"status"`
	Database  bool      `json:"database"`
	Redis     bool      `json:"redis"`
	Detection bool      `json:"detection"`
	VLM       bool      `json:"vlm"`
	UploadDir bool      `json:"uploadDir"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemService checks dependencies for the status endpoint.
type SystemService struct {
	db        Pinger
	redis     Pinger
	detector  detection.Detector
	extractor vlm.Extractor
	media     *MediaService
}

// NewSystemService creates a new SystemService.
func NewSystemService(db, redis Pinger, detector detection.Detector, extractor vlm.Extractor, media *MediaService) *SystemService {
	return &SystemService{db: db, redis: redis, detector: detector, extractor: extractor, media: media}
}

// Status runs every check concurrently, each with its own timeout.
func (s *SystemService) Status(ctx context.Context) *SystemStatus {
	st := &SystemStatus{Timestamp: time.Now()}

	checks := []struct {
		ok *bool
		fn func(context.Context) error
	}{
		{&st.Database, s.db.Ping},
		{&st.Redis, s.redis.Ping},
		{&st.Detection, optionalPing(s.detector)},
		{&st.VLM, optionalPing(s.extractor)},
		{&st.UploadDir, func(context.Context) error { return s.media.UploadDirWritable() }},
	}

	var wg sync.WaitGroup
	for _, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, statusCheckTimeout)
			defer cancel()
			*c.ok = c.fn(cctx) == nil
		}()
	}
	wg.Wait()

	st.Status = "healthy"
	if !(st.Database && st.Redis && st.Detection && st.VLM && st.UploadDir) {
		st.Status = "degraded"
	}
	return st
}

// optionalPing pings dependencies that support it; local ones always pass.
func optionalPing(dep any) func(context.Context) error {
	if p, ok := dep.(Pinger); ok {
		return p.Ping
	}
	return func(context.Context) error { return nil }
}
