package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	domain "accounts/backend/internal/domain/auth"
	"accounts/backend/internal/domain/paging"
	"accounts/backend/internal/usecase/account"
)

const defaultPageSize = 10

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/users", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Get("/logout", s.handleLogout)
		r.Get("/current", s.handleCurrentUser)
		r.Post("/register", s.handleRegister)
		r.Get("/paginate", s.handlePaginate)
		r.Get("/statistics", s.handleStatistics)
		r.Put("/forgotpassword", s.handleForgotPassword)
		r.Put("/changepassword", s.handleChangePassword)
		r.Get("/{id}", s.handleGetUser)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Put("/{id}", s.handleUpdateUser)
			r.Delete("/{id}", s.handleDeleteUser)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeItem(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if !s.decode(w, r, &payload) {
		return
	}

	login, ok, err := s.auth.Authenticate(r.Context(), domain.Credentials{
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, domain.ErrInvalidCredentials)
		return
	}

	s.setSessionCookie(w, login.Token, login.Session.ExpiresAt)
	writeItem(w, http.StatusOK, map[string]any{
		"token": login.Token,
		"user":  login.User,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := s.sessionToken(r); token != "" {
		if err := s.auth.EndSession(r.Context(), token); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.clearSessionCookie(w)
	writeSuccess(w)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	session, ok, err := s.auth.CurrentUser(r.Context(), s.sessionToken(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not logged in")
		return
	}
	writeItem(w, http.StatusOK, session)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,max=72"`
		Name     string `json:"name" validate:"max=100"`
	}
	if !s.decode(w, r, &payload) {
		return
	}

	id, err := s.accounts.Register(r.Context(), account.RegisterInput{
		Email:    payload.Email,
		Password: payload.Password,
		Name:     payload.Name,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItem(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	user, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItem(w, http.StatusOK, user)
}

type pageView struct {
	*paging.Page[*domain.User]
	TotalPages      int  `json:"totalPages"`
	HasPreviousPage bool `json:"hasPreviousPage"`
	HasNextPage     bool `json:"hasNextPage"`
}

func (s *Server) handlePaginate(w http.ResponseWriter, r *http.Request) {
	pageIndex, err := queryInt(r, "pageIndex", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageSize, err := queryInt(r, "pageSize", defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.accounts.ListPage(r.Context(), pageIndex, pageSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItem(w, http.StatusOK, pageView{
		Page:            page,
		TotalPages:      page.TotalPages(),
		HasPreviousPage: page.HasPreviousPage(),
		HasNextPage:     page.HasNextPage(),
	})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	actingID, err := domain.CurrentUserID(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var payload struct {
		Email *string `json:"email" validate:"omitempty,email,max=254"`
		Name  *string `json:"name" validate:"omitempty,max=100"`
	}
	if !s.decode(w, r, &payload) {
		return
	}

	user, err := s.accounts.Update(r.Context(), id, actingID, account.UpdateInput{
		Email: payload.Email,
		Name:  payload.Name,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItem(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	actingID, err := domain.CurrentUserID(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if id != actingID {
		s.fail(w, r, domain.ErrForbidden)
		return
	}

	if err := s.accounts.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.auth.EndSession(r.Context(), s.sessionToken(r)); err != nil {
		s.logger.WithError(err).Warn("end session after delete")
	}
	s.clearSessionCookie(w)
	writeSuccess(w)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email" validate:"required,email"`
	}
	if !s.decode(w, r, &payload) {
		return
	}
	if err := s.accounts.RequestReset(r.Context(), payload.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token       string `json:"token" validate:"required"`
		Purpose     string `json:"purpose" validate:"omitempty,oneof=reset-password"`
		NewPassword string `json:"newPassword" validate:"required,max=72"`
	}
	if !s.decode(w, r, &payload) {
		return
	}
	err := s.accounts.ConsumePasswordChange(r.Context(), account.ChangePasswordInput{
		Token:       payload.Token,
		Purpose:     payload.Purpose,
		NewPassword: payload.NewPassword,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.accounts.Analytics(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, stats)
}

// decode reads a JSON body into dst and validates it, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", lowerFirst(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}
