package handlers

import (
	"net/http"
	"sort"
)

// RoomStats represents stats for a single live room.
type RoomStats struct {
	ID          string `json:"id"`
	Connections int    `json:"connections"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	ActiveRooms int         `json:"active_rooms"`
	ActiveConns int         `json:"active_connections"`
	Rooms       []RoomStats `json:"rooms"`
}

// Stats returns relay statistics. Rooms are purely in-memory; an empty
// room has already been discarded and never shows up here.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rooms := h.registry.Rooms()

	stats := make([]RoomStats, 0, len(rooms))
	totalConns := 0
	for id, conns := range rooms {
		stats = append(stats, RoomStats{ID: id, Connections: conns})
		totalConns += conns
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })

	h.JSON(w, http.StatusOK, StatsResponse{
		ActiveRooms: len(rooms),
		ActiveConns: totalConns,
		Rooms:       stats,
	})
}

// Rooms returns just the live room list.
func (h *Handler) Rooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.registry.Rooms()
	stats := make([]RoomStats, 0, len(rooms))
	for id, conns := range rooms {
		stats = append(stats, RoomStats{ID: id, Connections: conns})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	h.JSON(w, http.StatusOK, stats)
}
