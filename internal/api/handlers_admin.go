package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/raid-tracker/internal/adapter"
	"github.com/raid-tracker/internal/catalog"
	apperrors "github.com/raid-tracker/internal/errors"
	"github.com/raid-tracker/internal/models"
	"github.com/raid-tracker/internal/types"
	"github.com/raid-tracker/internal/worker"
)

// SyncStatusResponse describes the scheduler's latest run
type SyncStatusResponse struct {
	Running   bool               `json:"running"`
	LastRunAt *time.Time         `json:"lastRunAt,omitempty"`
	LastError *string            `json:"lastError,omitempty"`
	Result    *models.SyncResult `json:"result,omitempty"`
}

// ReenqueueRequest identifies the character to reprocess
type ReenqueueRequest struct {
	Name        string `json:"name"`
	Realm       string `json:"realm"`
	Region      string `json:"region"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

// ReenqueueResponse acknowledges a re-enqueue
type ReenqueueResponse struct {
	CharacterID int64  `json:"characterId"`
	Stage       string `json:"stage"`
	Status      string `json:"status"`
}

// ProviderStatus joins a provider's quota state with its call health
type ProviderStatus struct {
	models.RateLimitState
	Health *adapter.ProviderHealth `json:"health,omitempty"`
}

// RateLimitsResponse is the body of GET /admin/ratelimits
type RateLimitsResponse struct {
	Providers []ProviderStatus            `json:"providers"`
	Workers   []*worker.StageWorkerStatus `json:"workers"`
	Queues    map[types.Stage]int         `json:"queues"`
}

// handleCatalogSync runs a catalog sync synchronously
func (s *Server) handleCatalogSync(w http.ResponseWriter, r *http.Request) {
	var opts catalog.Options
	var err error
	if opts.Force, err = queryBool(r, "force"); err != nil {
		respondServiceError(w, apperrors.NewInvalidParameterError("force", "must be a boolean"))
		return
	}
	if opts.SkipIcons, err = queryBool(r, "skipIcons"); err != nil {
		respondServiceError(w, apperrors.NewInvalidParameterError("skipIcons", "must be a boolean"))
		return
	}

	// The sync outlives a client that disconnects while it runs
	result, err := s.syncer.RunNow(context.WithoutCancel(r.Context()), opts)
	switch {
	case errors.Is(err, catalog.ErrSyncInProgress):
		s.logger.Info("Catalog sync rejected, one is already running")
		respondServiceError(w, err)
		return
	case errors.Is(err, catalog.ErrNoStructuralData):
		respondError(w, http.StatusBadGateway, ErrCodeSyncFailed, err.Error(), map[string]interface{}{
			"result": result,
		})
		return
	case err != nil:
		s.logger.WithError(err).Error("Catalog sync failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleCatalogSyncStatus reports the last scheduled or manual sync
func (s *Server) handleCatalogSyncStatus(w http.ResponseWriter, r *http.Request) {
	result, at := s.syncer.LastResult()
	resp := SyncStatusResponse{Running: s.syncer.Running(), Result: result}
	if !at.IsZero() {
		resp.LastRunAt = &at
	}
	if err := s.syncer.LastError(); err != nil {
		msg := err.Error()
		resp.LastError = &msg
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRaids(w http.ResponseWriter, r *http.Request) {
	raids, err := s.catalog.ListRaids(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list raids")
		respondServiceError(w, err)
		return
	}
	if raids == nil {
		raids = []models.RaidWithBosses{}
	}
	respondJSON(w, http.StatusOK, raids)
}

// handleReenqueue resets a character's processing and queues a fresh lightweight run
func (s *Server) handleReenqueue(w http.ResponseWriter, r *http.Request) {
	characterID, ok := characterIDParam(w, r)
	if !ok {
		return
	}

	var req ReenqueueRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Realm = strings.TrimSpace(req.Realm)
	req.Region = string(types.NormalizeRegion(req.Region))
	if req.Name == "" || req.Realm == "" || req.Region == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "name, realm and region are required", nil)
		return
	}

	job := &models.QueueJob{
		CharacterID: characterID,
		Name:        req.Name,
		Realm:       req.Realm,
		Region:      req.Region,
		Stage:       types.StageLightweight,
		RequestedBy: req.RequestedBy,
	}
	if err := s.processing.Reenqueue(r.Context(), job); err != nil {
		s.logger.WithError(err).WithField("characterId", characterID).Error("Failed to re-enqueue character")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, ReenqueueResponse{
		CharacterID: characterID,
		Stage:       string(types.StageLightweight),
		Status:      string(types.StatusPending),
	})
}

func (s *Server) handleGetProcessing(w http.ResponseWriter, r *http.Request) {
	characterID, ok := characterIDParam(w, r)
	if !ok {
		return
	}

	state, err := s.processing.State(r.Context(), characterID)
	if err != nil {
		s.logger.WithError(err).WithField("characterId", characterID).Error("Failed to load processing state")
		respondServiceError(w, err)
		return
	}
	if state == nil {
		respondServiceError(w, apperrors.NewNotFoundError("processing state", strconv.FormatInt(characterID, 10)))
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// handleRateLimits reports quota, provider health, worker and queue state
func (s *Server) handleRateLimits(w http.ResponseWriter, r *http.Request) {
	resp := RateLimitsResponse{
		Providers: []ProviderStatus{},
		Workers:   make([]*worker.StageWorkerStatus, 0, len(s.workers)),
	}
	for _, state := range s.rateLimits.States() {
		status := ProviderStatus{RateLimitState: state}
		if reporter, ok := s.providers[state.Provider]; ok && reporter != nil {
			status.Health = reporter.Health()
		}
		resp.Providers = append(resp.Providers, status)
	}
	for _, wr := range s.workers {
		resp.Workers = append(resp.Workers, wr.GetStatus())
	}

	queues, err := s.processing.QueueLengths(r.Context())
	if err != nil {
		s.logger.WithError(err).Warn("Failed to count queues")
	} else {
		resp.Queues = queues
	}

	respondJSON(w, http.StatusOK, resp)
}

func characterIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondServiceError(w, apperrors.NewInvalidParameterError("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

// queryBool parses an optional boolean query parameter
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
