package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tecnicfitia/urbanismoverde/internal/errors"
	"github.com/tecnicfitia/urbanismoverde/internal/geo"
	"github.com/tecnicfitia/urbanismoverde/internal/models"
	"github.com/tecnicfitia/urbanismoverde/internal/uuid"
)

// ZoneService layers zone-specific validation and geometry enrichment on
// top of the generic entity write path.
type ZoneService struct {
	entities *EntityService
}

// NewZoneService creates a ZoneService.
func NewZoneService(entities *EntityService) *ZoneService {
	return &ZoneService{entities: entities}
}

// CreateZone assigns an id, measures the polygon and writes the zone.
func (z *ZoneService) CreateZone(ctx context.Context, zone *models.Zone) (WriteResult, error) {
	if len(zone.Polygon) < 3 {
		return WriteResult{}, errors.New(errors.ErrValidation, "zone polygon needs at least 3 points")
	}

	now := time.Now().Unix()
	zone.ID = models.UUID(uuid.New())
	zone.CreatedAt = now
	zone.UpdatedAt = now
	measure(zone)

	payload, err := json.Marshal(zone)
	if err != nil {
		return WriteResult{}, errors.Wrap(errors.ErrInternal, "failed to encode zone", err)
	}

	return z.entities.Save(ctx, models.CollectionZones, zone.ID.String(), payload, true), nil
}

// UpdateZone re-measures the polygon and writes the zone.
func (z *ZoneService) UpdateZone(ctx context.Context, zone *models.Zone) (WriteResult, error) {
	if zone.ID == "" {
		return WriteResult{}, errors.New(errors.ErrValidation, "zone id is required")
	}
	if err := uuid.Validate(zone.ID.String()); err != nil {
		return WriteResult{}, errors.Wrap(errors.ErrValidation, "invalid zone id", err)
	}
	if len(zone.Polygon) >= 3 {
		measure(zone)
	}
	zone.Touch()

	payload, err := json.Marshal(zone)
	if err != nil {
		return WriteResult{}, errors.Wrap(errors.ErrInternal, "failed to encode zone", err)
	}

	return z.entities.Save(ctx, models.CollectionZones, zone.ID.String(), payload, false), nil
}

// measure fills the derived geometry fields from the polygon.
func measure(zone *models.Zone) {
	zone.AreaM2 = geo.PolygonArea(zone.Polygon)
	zone.PerimeterM = geo.PolygonPerimeter(zone.Polygon)
	zone.CentroidLat, zone.CentroidLon = geo.Centroid(zone.Polygon)
}

// DeleteZone removes the zone locally and queues the remote delete when it
// cannot be confirmed immediately.
func (z *ZoneService) DeleteZone(ctx context.Context, id string) WriteResult {
	return z.entities.Remove(ctx, models.CollectionZones, id)
}

// GetZone reads a cached zone.
func (z *ZoneService) GetZone(id string) (*models.Zone, bool) {
	rec, ok := z.entities.Get(models.CollectionZones, id)
	if !ok {
		return nil, false
	}
	var zone models.Zone
	if err := json.Unmarshal(rec.Payload, &zone); err != nil {
		return nil, false
	}
	return &zone, true
}

// ListZones reads all cached zones.
func (z *ZoneService) ListZones() []*models.Zone {
	recs := z.entities.List(models.CollectionZones)
	zones := make([]*models.Zone, 0, len(recs))
	for _, rec := range recs {
		var zone models.Zone
		if err := json.Unmarshal(rec.Payload, &zone); err != nil {
			continue
		}
		zones = append(zones, &zone)
	}
	return zones
}
