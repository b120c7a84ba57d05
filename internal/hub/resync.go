package hub

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// SnapshotFetcher pulls a full attribute snapshot over the HTTP API.
type SnapshotFetcher interface {
	DeviceAttrsSnapshot(ctx context.Context, deviceID string) (Attrs, error)
}

// Resyncer periodically pulls full snapshots and applies them as
// reports. Websocket pushes can be missed across reconnects; the
// resync heals any drift between the cloud and the local attrs.
type Resyncer struct {
	fetcher SnapshotFetcher
	hub     *Hub
	cron    *cron.Cron
}

func NewResyncer(fetcher SnapshotFetcher, h *Hub) *Resyncer {
	return &Resyncer{
		fetcher: fetcher,
		hub:     h,
		cron:    cron.New(),
	}
}

// Start schedules the resync job. Schedule accepts cron expressions
// and descriptors like "@every 10m".
func (r *Resyncer) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, r.runOnce)
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *Resyncer) Stop() {
	r.cron.Stop()
}

func (r *Resyncer) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, device := range r.hub.Devices() {
		attrs, err := r.fetcher.DeviceAttrsSnapshot(ctx, device.ID)
		if err != nil {
			log.Printf("resync %s: %v", device.ID, err)
			continue
		}
		r.hub.ApplyReport(device.ID, attrs)
	}
}
