package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"meetupAPI/internal/logger"
	"meetupAPI/internal/rooms"
	"meetupAPI/internal/store"
	"meetupAPI/services"
)

type LocationHandler struct {
	locationService *services.LocationService
}

func NewLocationHandler(locationService *services.LocationService) *LocationHandler {
	return &LocationHandler{
		locationService: locationService,
	}
}

type positionRequest struct {
	RoomUserID string     `json:"roomUserId"`
	Lat        *float64   `json:"lat"`
	Lng        *float64   `json:"lng"`
	Online     *bool      `json:"online"`
	Timestamp  *time.Time `json:"timestamp"`
}

// IngestPosition accepts one position sample for a room member.
func (h *LocationHandler) IngestPosition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	roomID := mux.Vars(r)["roomID"]

	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RoomUserID == "" {
		respondWithError(w, http.StatusBadRequest, "roomUserId is required")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		respondWithError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	sample := services.PositionSample{
		RoomID:     roomID,
		RoomUserID: req.RoomUserID,
		Lat:        *req.Lat,
		Lng:        *req.Lng,
		Online:     true,
	}
	if req.Online != nil {
		sample.Online = *req.Online
	}
	if req.Timestamp != nil {
		sample.Timestamp = req.Timestamp.UTC()
	}

	if _, err := h.locationService.HandlePositionUpdate(ctx, sample); err != nil {
		writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *LocationHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	roomID := mux.Vars(r)["roomID"]

	topN := 0
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "top must be a non-negative integer")
			return
		}
		topN = n
	}

	board, err := h.locationService.GetLeaderboard(ctx, roomID, topN)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

func (h *LocationHandler) GetArrivals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	roomID := mux.Vars(r)["roomID"]

	arrivals, err := h.locationService.GetArrivals(ctx, roomID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, arrivals)
}

func (h *LocationHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	vars := mux.Vars(r)

	pos, found, err := h.locationService.GetPosition(ctx, vars["roomID"], vars["roomUserID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		respondWithError(w, http.StatusNotFound, "no position reported")
		return
	}

	respondWithJSON(w, http.StatusOK, pos)
}

// RemoveMember is called by the room service when a user leaves.
func (h *LocationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	vars := mux.Vars(r)

	if err := h.locationService.RemoveMember(ctx, vars["roomID"], vars["roomUserID"]); err != nil {
		writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidCoordinates):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotMember):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, rooms.ErrRoomNotFound):
		respondWithError(w, http.StatusNotFound, "Room not found")
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		logger.Error("location request failed: %v", err)
		respondWithError(w, http.StatusServiceUnavailable, "Position store unavailable")
	default:
		logger.Error("location request failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
