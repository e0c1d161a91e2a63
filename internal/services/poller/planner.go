package poller

import (
	"time"

	"github.com/BearBump/LiveTrack/internal/cache/rediscache"
	"github.com/BearBump/LiveTrack/internal/geo"
	"github.com/BearBump/LiveTrack/internal/models"
)

type PlannerConfig struct {
	StationaryWindow       time.Duration // default: 3 minutes
	StationaryRadiusMeters float64       // default: 30 meters
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		StationaryWindow:       3 * time.Minute,
		StationaryRadiusMeters: 30,
	}
}

// Planner decides what the worker does with one active record.
type Planner struct {
	cfg PlannerConfig
}

func NewPlanner(cfg PlannerConfig) *Planner {
	def := DefaultPlannerConfig()
	if cfg.StationaryWindow <= 0 {
		cfg.StationaryWindow = def.StationaryWindow
	}
	if cfg.StationaryRadiusMeters <= 0 {
		cfg.StationaryRadiusMeters = def.StationaryRadiusMeters
	}
	return &Planner{cfg: cfg}
}

func (p *Planner) Config() PlannerConfig {
	return p.cfg
}

// NeedsETA - заказ у курьера и известны обе точки.
func (p *Planner) NeedsETA(rec *models.TrackingRecord) bool {
	return rec.Status.IsActive() && rec.DriverLocation != nil && rec.UserLocation != nil
}

type StationaryDecision struct {
	// Anchor is the anchor to keep for the order; ResetAnchor says it must be written.
	Anchor      rediscache.AnchorSnapshot
	ResetAnchor bool
	Stationary  bool
}

// Stationary compares the current driver position with the streak anchor.
// Leaving the radius starts a new streak at loc; staying inside it for the whole window is stationary.
func (p *Planner) Stationary(anchor *rediscache.AnchorSnapshot, loc models.Location, now time.Time) StationaryDecision {
	if anchor == nil || geo.DistanceMeters(anchor.Lat, anchor.Lng, loc.Lat, loc.Lng) > p.cfg.StationaryRadiusMeters {
		return StationaryDecision{
			Anchor:      rediscache.AnchorSnapshot{Lat: loc.Lat, Lng: loc.Lng, Since: now},
			ResetAnchor: true,
		}
	}
	return StationaryDecision{
		Anchor:     *anchor,
		Stationary: now.Sub(anchor.Since) >= p.cfg.StationaryWindow,
	}
}
