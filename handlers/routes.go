package handlers

import "github.com/gorilla/mux"

// RegisterRoomRoutes mounts the room endpoints on the /api/v1 subrouter.
func RegisterRoomRoutes(api *mux.Router, location *LocationHandler, live *LiveHandler) {
	room := api.PathPrefix("/rooms/{roomID}").Subrouter()

	room.HandleFunc("/positions", location.IngestPosition).Methods("POST")
	room.HandleFunc("/positions/{roomUserID}", location.GetPosition).Methods("GET")
	room.HandleFunc("/leaderboard", location.GetLeaderboard).Methods("GET")
	room.HandleFunc("/arrivals", location.GetArrivals).Methods("GET")
	room.HandleFunc("/members/{roomUserID}", location.RemoveMember).Methods("DELETE")
	room.HandleFunc("/ws", live.JoinRoom).Methods("GET")
}
