// Package admin serves a read-mostly REST API over the room directory for
// moderators: room membership and history, reports and their review state,
// and per-user toxic message records. It carries no authentication and is
// meant for a private listener.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
)

// RoomLister reports the rooms with live members.
type RoomLister interface {
	Rooms() []string
	MembersOf(room string) []string
}

// Handler handles the admin API.
type Handler struct {
	dir   directory.Directory
	rooms RoomLister
}

// NewHandler creates a Handler. rooms may be nil, in which case the live
// room listing is empty.
func NewHandler(dir directory.Directory, rooms RoomLister) *Handler {
	return &Handler{dir: dir, rooms: rooms}
}

// Routes registers the admin endpoints on r. They are added to r itself
// rather than a path-prefix subrouter so that a known path with the wrong
// method gets 405 instead of 404.
func (h *Handler) Routes(r *mux.Router) {
	h.HealthRoute(r)
	r.HandleFunc("/api/rooms", h.ListRooms).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{room}/users", h.ListUsers).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{room}/messages", h.ListMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{room}/messages", h.DeleteMessages).Methods(http.MethodDelete)
	r.HandleFunc("/api/rooms/{room}/reports", h.ListRoomReports).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/{id}/reports", h.ListMessageReports).Methods(http.MethodGet)
	r.HandleFunc("/api/reports/{id}", h.UpdateReport).Methods(http.MethodPatch)
	r.HandleFunc("/api/users/{username}/toxic-messages", h.ListToxicMessages).Methods(http.MethodGet)
}

// HealthRoute registers only GET /api/health. The public listener mounts
// it while the rest of the API stays on the admin listener.
func (h *Handler) HealthRoute(r *mux.Router) {
	r.HandleFunc("/api/health", h.Health).Methods(http.MethodGet)
}

// RoomSummary is one entry of GET /api/rooms.
type RoomSummary struct {
	Room    string `json:"room"`
	Members int    `json:"members"`
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListRooms handles GET /api/rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	out := make([]RoomSummary, 0)
	if h.rooms != nil {
		for _, room := range h.rooms.Rooms() {
			out = append(out, RoomSummary{Room: room, Members: len(h.rooms.MembersOf(room))})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ListUsers handles GET /api/rooms/{room}/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.dir.ListUsersInRoom(r.Context(), mux.Vars(r)["room"])
	if err != nil {
		h.fail(w, r, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}

// ListMessages handles GET /api/rooms/{room}/messages?limit=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	msgs, err := h.dir.ListMessages(r.Context(), mux.Vars(r)["room"], limit)
	if err != nil {
		h.fail(w, r, err, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

// DeleteMessages handles DELETE /api/rooms/{room}/messages
func (h *Handler) DeleteMessages(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	n, err := h.dir.DeleteMessagesInRoom(r.Context(), room)
	if err != nil {
		h.fail(w, r, err, "failed to delete messages")
		return
	}
	logging.Ctx(r.Context()).Info().Str(logging.FieldRoom, room).Int64("deleted", n).Msg("room history deleted")
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// ListRoomReports handles GET /api/rooms/{room}/reports?limit=
func (h *Handler) ListRoomReports(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	reports, err := h.dir.ListReportsForRoom(r.Context(), mux.Vars(r)["room"], limit)
	if err != nil {
		h.fail(w, r, err, "failed to list reports")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reports))
}

// ListMessageReports handles GET /api/messages/{id}/reports
func (h *Handler) ListMessageReports(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reports, err := h.dir.ListReportsForMessage(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to list reports")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reports))
}

type updateReportRequest struct {
	Status directory.ReportStatus `json:"status"`
}

// UpdateReport handles PATCH /api/reports/{id}
func (h *Handler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	report, err := h.dir.UpdateReportStatus(r.Context(), id, req.Status)
	if err != nil {
		h.fail(w, r, err, "failed to update report")
		return
	}
	logging.Ctx(r.Context()).Info().Int64("report_id", id).Str("status", string(report.Status)).Msg("report reviewed")
	writeJSON(w, http.StatusOK, report)
}

// ListToxicMessages handles GET /api/users/{username}/toxic-messages?limit=
func (h *Handler) ListToxicMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	recs, err := h.dir.ListToxicMessagesForUser(r.Context(), mux.Vars(r)["username"], limit)
	if err != nil {
		h.fail(w, r, err, "failed to list toxic messages")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(recs))
}

// fail maps directory errors onto status codes. Unexpected errors are
// logged and reported as 500 with msg.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, directory.ErrInvalidStatus):
		http.Error(w, "status must be pending, reviewed or dismissed", http.StatusBadRequest)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// queryLimit parses ?limit=. Absent means the directory default.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return 0, false
	}
	return limit, true
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
