package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"popout/internal/events"
	"popout/internal/middleware"
	"popout/internal/util"
)

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	var req struct {
		Title             string   `json:"title"`
		Description       string   `json:"description"`
		LocationName      string   `json:"location_name"`
		Lat               *float64 `json:"lat"`
		Lon               *float64 `json:"lon"`
		JoinExpiryMinutes int      `json:"join_expiry_minutes"`
		StartTime         *string  `json:"start_time"`
		EndTime           string   `json:"end_time"`
		MaxParticipants   int      `json:"max_participants"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}

	in := events.CreateEventInput{
		Title:             req.Title,
		Description:       req.Description,
		LocationName:      req.LocationName,
		Lat:               req.Lat,
		Lon:               req.Lon,
		JoinExpiryMinutes: req.JoinExpiryMinutes,
		MaxParticipants:   req.MaxParticipants,
	}
	if req.StartTime != nil {
		t, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			util.WriteError(w, http.StatusBadRequest, "bad_request", "start_time must be RFC 3339", middleware.RequestID(r.Context()))
			return
		}
		in.StartTime = &t
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "end_time must be RFC 3339", middleware.RequestID(r.Context()))
		return
	}
	in.EndTime = end

	e, err := h.ev.CreateEvent(r.Context(), u, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, toEventView(e))
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	e, err := h.ev.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status, err := h.ev.JoinStatusFor(r.Context(), e, u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	detail := eventDetailView{eventView: toEventView(e), JoinStatus: string(status)}
	// The member roster is visible to members only.
	if member, err := h.ev.IsMember(r.Context(), e, u.ID); err == nil && member {
		members, err := h.ev.DerivedMembers(r.Context(), e)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		detail.Members = make([]userView, 0, len(members))
		for _, m := range members {
			detail.Members = append(detail.Members, toUserView(m))
		}
	}
	util.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handlers) Nearby(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	q := r.URL.Query()

	var lat, lon float64
	var err error
	switch {
	case q.Get("lat") != "" && q.Get("lon") != "":
		lat, err = strconv.ParseFloat(q.Get("lat"), 64)
		if err == nil {
			lon, err = strconv.ParseFloat(q.Get("lon"), 64)
		}
		if err != nil {
			util.WriteError(w, http.StatusBadRequest, "bad_request", "lat and lon must be numbers", middleware.RequestID(r.Context()))
			return
		}
	case u.Lat != nil && u.Lon != nil:
		lat, lon = *u.Lat, *u.Lon
	default:
		util.WriteError(w, http.StatusBadRequest, "bad_request", "no origin: pass lat/lon or set a profile location", middleware.RequestID(r.Context()))
		return
	}

	radius := h.cfg.DefaultRadiusKm
	if v := q.Get("radius_km"); v != "" {
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil || radius <= 0 {
			util.WriteError(w, http.StatusBadRequest, "bad_request", "radius_km must be a positive number", middleware.RequestID(r.Context()))
			return
		}
	}
	if radius > h.cfg.MaxRadiusKm {
		radius = h.cfg.MaxRadiusKm
	}

	results, err := h.ev.Nearby(r.Context(), u, lat, lon, radius)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]nearbyView, 0, len(results))
	for _, n := range results {
		out = append(out, toNearbyView(n))
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"events": out, "radius_km": radius})
}

func (h *Handlers) RequestJoin(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	req, err := h.ev.RequestJoin(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, toRequestView(req))
}

func (h *Handlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	e, err := h.ev.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	reqs, err := h.ev.Requests(r.Context(), e, u)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]requestView, 0, len(reqs))
	for _, jr := range reqs {
		out = append(out, toRequestView(jr))
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (h *Handlers) Respond(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	var req struct {
		Decision string `json:"decision"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	decision, err := events.ParseDecision(req.Decision)
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "decision must be accept or reject", middleware.RequestID(r.Context()))
		return
	}
	jr, err := h.ev.Respond(r.Context(), chi.URLParam(r, "id"), u, decision)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, toRequestView(jr))
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	e, err := h.ev.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	msgs, err := h.ev.Messages(r.Context(), e, u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageView(m))
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (h *Handlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	e, err := h.ev.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	m, err := h.ev.PostMessage(r.Context(), e, u, req.Body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.hub.Broadcast(e.ID, m)
	util.WriteJSON(w, http.StatusCreated, toMessageView(m))
}

// Chat upgrades to a websocket after the same membership check the REST
// endpoints apply. Browsers cannot set Authorization on upgrade requests,
// hence the token query parameter accepted by Authn.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	e, err := h.ev.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	member, err := h.ev.IsMember(r.Context(), e, u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !member {
		writeServiceError(w, r, events.ErrNotAMember)
		return
	}
	h.hub.Serve(w, r, e, u)
}
