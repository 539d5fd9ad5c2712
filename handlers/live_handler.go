package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"meetupAPI/internal/logger"
	"meetupAPI/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type LiveHandler struct {
	dispatcher      *services.BroadcastDispatcher
	locationService *services.LocationService
}

func NewLiveHandler(dispatcher *services.BroadcastDispatcher, locationService *services.LocationService) *LiveHandler {
	return &LiveHandler{
		dispatcher:      dispatcher,
		locationService: locationService,
	}
}

// JoinRoom opens a room channel. With ?roomUserId= the socket may also
// publish positions; without it the connection is watch-only.
func (h *LiveHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	roomUserID := r.URL.Query().Get("roomUserId")

	if roomUserID != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		member, err := h.locationService.IsMember(ctx, roomID, roomUserID)
		cancel()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if !member {
			respondWithError(w, http.StatusForbidden, services.ErrNotMember.Error())
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("could not upgrade connection: %v", err)
		return
	}

	sub, err := h.dispatcher.Subscribe(roomID, roomUserID)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"))
		conn.Close()
		return
	}

	var ingest services.PositionIngester
	if roomUserID != "" {
		ingest = services.IngestFunc(func(ctx context.Context, sample services.PositionSample) error {
			_, err := h.locationService.HandlePositionUpdate(ctx, sample)
			return err
		})
	}

	client := services.NewClient(h.dispatcher, sub, conn, ingest)

	// Start Pumps
	go client.WritePump()
	go client.ReadPump()
}
