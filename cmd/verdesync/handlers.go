// REST handlers exposing the cached collections and sync controls.
package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tecnicfitia/urbanismoverde/internal/cache"
	"github.com/tecnicfitia/urbanismoverde/internal/metrics"
	"github.com/tecnicfitia/urbanismoverde/internal/models"
	"github.com/tecnicfitia/urbanismoverde/internal/services"
	"github.com/tecnicfitia/urbanismoverde/internal/syncer"
	"github.com/tecnicfitia/urbanismoverde/internal/uuid"
)

// API bundles the handler dependencies.
type API struct {
	zones    *services.ZoneService
	entities *services.EntityService
	syncer   *syncer.Synchronizer
	cache    *cache.Service
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// =====================================================
// Zone Endpoints
// =====================================================

// CreateZone handles POST /zones.
func (a *API) CreateZone(w http.ResponseWriter, r *http.Request) {
	var zone models.Zone
	if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
		writeError(w, http.StatusBadRequest, "invalid zone body")
		return
	}

	result, err := a.zones.CreateZone(r.Context(), &zone)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"zone":   zone,
		"synced": result.Synced,
		"queued": result.Queued,
	})
}

// ListZones handles GET /zones.
func (a *API) ListZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.zones.ListZones())
}

// GetZone handles GET /zones/{id}.
func (a *API) GetZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	zone, ok := a.zones.GetZone(id)
	if !ok {
		writeError(w, http.StatusNotFound, "zone not found")
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

// UpdateZone handles PUT /zones/{id}.
func (a *API) UpdateZone(w http.ResponseWriter, r *http.Request) {
	var zone models.Zone
	if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
		writeError(w, http.StatusBadRequest, "invalid zone body")
		return
	}
	zone.ID = models.UUID(chi.URLParam(r, "id"))

	result, err := a.zones.UpdateZone(r.Context(), &zone)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"zone":   zone,
		"synced": result.Synced,
		"queued": result.Queued,
	})
}

// DeleteZone handles DELETE /zones/{id}.
func (a *API) DeleteZone(w http.ResponseWriter, r *http.Request) {
	result := a.zones.DeleteZone(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, result)
}

// =====================================================
// Generic Collection Endpoints (analyses, inspections)
// =====================================================

// collectionFromRoute resolves the {collection} route param against the
// known entity collections.
func collectionFromRoute(r *http.Request) (string, bool) {
	col := chi.URLParam(r, "collection")
	for _, known := range models.Collections {
		if col == known {
			return col, true
		}
	}
	return "", false
}

// ListEntities handles GET /{collection}.
func (a *API) ListEntities(w http.ResponseWriter, r *http.Request) {
	col, ok := collectionFromRoute(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown collection")
		return
	}
	writeJSON(w, http.StatusOK, a.entities.List(col))
}

// GetEntity handles GET /{collection}/{id}.
func (a *API) GetEntity(w http.ResponseWriter, r *http.Request) {
	col, ok := collectionFromRoute(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown collection")
		return
	}
	rec, found := a.entities.Get(col, chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// SaveEntity handles POST /{collection} and PUT /{collection}/{id}.
func (a *API) SaveEntity(w http.ResponseWriter, r *http.Request) {
	col, ok := collectionFromRoute(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown collection")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	isNew := r.Method == http.MethodPost
	id := chi.URLParam(r, "id")
	if isNew {
		id = uuid.New()
		body, err = withID(body, id)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	result := a.entities.Save(r.Context(), col, id, body, isNew)

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"id":     id,
		"synced": result.Synced,
		"queued": result.Queued,
	})
}

// DeleteEntity handles DELETE /{collection}/{id}.
func (a *API) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	col, ok := collectionFromRoute(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown collection")
		return
	}
	result := a.entities.Remove(r.Context(), col, chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, result)
}

// withID injects the generated id into a payload object.
func withID(body []byte, id string) ([]byte, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	obj["id"] = id
	return json.Marshal(obj)
}

// =====================================================
// Sync Endpoints
// =====================================================

// SyncStatus handles GET /sync/status.
func (a *API) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.syncer.Status())
}

// SyncNow handles POST /sync/now. Returns 202 when a pass was started and
// 409 when one is already running.
func (a *API) SyncNow(w http.ResponseWriter, r *http.Request) {
	if a.syncer.ForceSync() {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}
	writeJSON(w, http.StatusConflict, map[string]string{"status": "already_syncing"})
}

// Metrics handles GET /metrics: sync counters plus per-collection cache
// stats.
func (a *API) Metrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"sync":        metrics.Collect(),
		"collections": a.cache.Stats(),
	}
	if t := a.syncer.Status().LastSyncTime(); !t.IsZero() {
		payload["last_sync_time"] = t.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, payload)
}
