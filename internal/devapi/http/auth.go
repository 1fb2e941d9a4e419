package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/pmboard/internal/devapi/service"
	"github.com/aussiebroadwan/pmboard/pkg/httpx"
	"github.com/aussiebroadwan/pmboard/pkg/slogx"
)

type AuthHandler struct {
	AuthService *service.AuthService
	UserService *service.UserService
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Login godoc
//
//	@Summary		Log in with username and password
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		loginRequest	true	"credentials"
//	@Success		200		{object}	domain.Session
//	@Failure		400		{object}	httpx.ErrorBody
//	@Failure		401		{object}	httpx.ErrorBody
//	@Router			/auth/login [post].
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.Username == "" || req.Password == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	sess, err := h.AuthService.Login(ctx, req.Username, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		httpx.WriteMessage(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		slogx.FromContext(ctx).Error("login failed", "err", err)
		httpx.WriteMessage(w, http.StatusInternalServerError, "Internal error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sess)
}

// Refresh godoc
//
//	@Summary		Exchange a refresh token for a new access token
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		refreshRequest	true	"refresh token"
//	@Success		200		{object}	domain.RefreshedToken
//	@Failure		401		{object}	httpx.ErrorBody
//	@Router			/auth/refresh-token [post].
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	out, err := h.AuthService.Refresh(ctx, req.RefreshToken)
	if errors.Is(err, service.ErrInvalidRefresh) {
		httpx.WriteMessage(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	if err != nil {
		slogx.FromContext(ctx).Error("refresh failed", "err", err)
		httpx.WriteMessage(w, http.StatusInternalServerError, "Internal error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, out)
}

// Logout godoc
//
//	@Summary		Revoke a refresh token
//	@Description	Always 204; unknown tokens are ignored
//	@Tags			Auth
//	@Accept			json
//	@Param			body	body	refreshRequest	true	"refresh token"
//	@Success		204
//	@Router			/auth/logout [post].
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.AuthService.Logout(ctx, req.RefreshToken); err != nil {
		slogx.FromContext(ctx).Warn("logout failed", "err", err)
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me godoc
//
//	@Summary	Current user
//	@Tags		Auth
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	domain.PublicUser
//	@Failure	401	{object}	httpx.ErrorBody
//	@Router		/auth/me [get].
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, err := h.UserService.GetUser(ctx, httpx.UserIDFromContext(ctx))
	if errors.Is(err, service.ErrNotFound) {
		httpx.WriteMessage(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		httpx.WriteMessage(w, http.StatusInternalServerError, "Internal error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, u.Public())
}
