package api

import (
	"net/http"

	"popout/internal/middleware"
	"popout/internal/service"
	"popout/internal/util"
)

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	if err := h.svc.Register(r.Context(), req.Email, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "verification_sent"})
}

func (h *Handlers) VerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	u, err := h.svc.VerifyRegistration(r.Context(), req.Email, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, toUserView(u))
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	token, u, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  toUserView(u),
	})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	util.WriteJSON(w, http.StatusOK, toUserView(u))
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	var req struct {
		Username *string  `json:"username"`
		Bio      *string  `json:"bio"`
		Lat      *float64 `json:"lat"`
		Lon      *float64 `json:"lon"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	updated, err := h.svc.UpdateProfile(r.Context(), u, service.ProfileUpdate{
		Username: req.Username,
		Bio:      req.Bio,
		Lat:      req.Lat,
		Lon:      req.Lon,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, toUserView(updated))
}

func (h *Handlers) Notifications(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	unreadOnly := r.URL.Query().Get("unread") == "true"
	items, err := h.st.ListNotifications(r.Context(), u.ID, unreadOnly)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]notificationView, 0, len(items))
	for _, n := range items {
		out = append(out, toNotificationView(n))
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func (h *Handlers) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	if err := h.st.MarkNotificationsRead(r.Context(), u.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
