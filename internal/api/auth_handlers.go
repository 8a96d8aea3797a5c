package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/battlebrief/bulwark/internal/auth"
	"github.com/battlebrief/bulwark/internal/store"
)

type SignupRequest struct {
	Username string  `json:"username" validate:"required,max=64"`
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=128"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,max=72"`
}

type SignupResponse struct {
	Msg      string `json:"msg"`
	Username string `json:"username"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type SettingsResponse struct {
	Username string  `json:"username"`
	FullName *string `json:"full_name"`
	Email    string  `json:"email"`
}

type UpdateSettingsRequest struct {
	Username        string  `json:"username" validate:"required,max=64"`
	FullName        *string `json:"full_name,omitempty" validate:"omitempty,max=128"`
	Email           string  `json:"email" validate:"required,email"`
	CurrentPassword string  `json:"currentPassword" validate:"required"`
}

type UpdateSettingsResponse struct {
	SettingsResponse
	TokenResponse
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,max=72"`
}

// decodeAndValidate writes a 400 and returns false when the body is unusable.
func (h *APIHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "email":
			parts = append(parts, field+" must be a valid email address")
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.auth.Signup(r.Context(), auth.SignupInput{
		Username: req.Username,
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			writeError(w, http.StatusBadRequest, msgUserExists)
			return
		}
		if errors.Is(err, auth.ErrPasswordTooLong) {
			writeError(w, http.StatusBadRequest, msgPasswordTooLong)
			return
		}
		h.log.Error("Error creating user", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	writeJSON(w, http.StatusOK, SignupResponse{Msg: "User created successfully", Username: user.Username})
}

// LoginHandler implements the OAuth2 password flow form.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	username, password := r.PostFormValue("username"), r.PostFormValue("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := h.auth.Login(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeUnauthorized(w, msgBadLogin)
			return
		}
		h.log.Error("Login failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, SettingsResponse{Username: user.Username, FullName: user.FullName, Email: user.Email})
}

func (h *APIHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var req UpdateSettingsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	updated, token, err := h.auth.UpdateProfile(r.Context(), user, auth.ProfileUpdate{
		Username:        req.Username,
		FullName:        req.FullName,
		Email:           req.Email,
		CurrentPassword: req.CurrentPassword,
	})
	switch {
	case errors.Is(err, auth.ErrWrongPassword):
		writeError(w, http.StatusBadRequest, msgWrongCurrent)
		return
	case errors.Is(err, store.ErrUserExists):
		writeError(w, http.StatusBadRequest, msgUserExists)
		return
	case err != nil:
		h.log.Error("Error updating settings", "username", user.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, UpdateSettingsResponse{
		SettingsResponse: SettingsResponse{Username: updated.Username, FullName: updated.FullName, Email: updated.Email},
		TokenResponse:    TokenResponse{AccessToken: token, TokenType: "bearer"},
	})
}

func (h *APIHandler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var req ChangePasswordRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	err := h.auth.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrWrongPassword):
		writeError(w, http.StatusBadRequest, msgWrongCurrent)
		return
	case errors.Is(err, auth.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, msgPasswordTooLong)
		return
	}
	if err != nil {
		h.log.Error("Error changing password", "username", user.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to change password")
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{Detail: "Password changed successfully."})
}
