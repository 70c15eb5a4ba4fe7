// Package identitytest runs an in-process fake of the identity service API
// for tests: create, lookup by email and update, plus scripted throttling.
package identitytest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

// StoredUser is the fake's view of one remote account.
type StoredUser struct {
	ID             string
	ExternalID     string
	Emails         []string
	EmailVerified  bool
	PasswordDigest string
	PasswordHasher string
}

type Server struct {
	server *httptest.Server

	mu           sync.Mutex
	users        map[string]*StoredUser
	nextID       int
	throttleLeft int
	retryAfter   int
	createCalls  int
	listCalls    int
	updateCalls  int
}

func New() *Server {
	s := &Server{users: make(map[string]*StoredUser)}

	e := echo.New()
	e.HideBanner = true
	e.POST("/v1/users", s.createUser)
	e.GET("/v1/users", s.listUsers)
	e.PATCH("/v1/users/:id", s.updateUser)

	s.server = httptest.NewServer(e)
	return s
}

func (s *Server) URL() string { return s.server.URL }

func (s *Server) Close() { s.server.Close() }

// ThrottleNext makes the next n requests answer 429 with the given
// Retry-After value in seconds.
func (s *Server) ThrottleNext(n, retryAfterSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttleLeft = n
	s.retryAfter = retryAfterSeconds
}

// SeedUser registers an already-existing remote account.
func (s *Server) SeedUser(id string, emails ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &StoredUser{ID: id, Emails: emails}
}

// User returns a copy of the stored account, or false when absent.
func (s *Server) User(id string) (StoredUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return StoredUser{}, false
	}
	return *u, true
}

func (s *Server) CreateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

func (s *Server) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *Server) UpdateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCalls
}

func (s *Server) throttled(c echo.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.throttleLeft <= 0 {
		return false
	}
	s.throttleLeft--
	c.Response().Header().Set("Retry-After", strconv.Itoa(s.retryAfter))
	return true
}

type createRequest struct {
	ExternalID     string   `json:"external_id"`
	EmailAddress   []string `json:"email_address"`
	PasswordDigest string   `json:"password_digest"`
	PasswordHasher string   `json:"password_hasher"`
}

type updateRequest struct {
	PrimaryEmailVerified *bool  `json:"primary_email_verified"`
	PasswordDigest       string `json:"password_digest"`
	PasswordHasher       string `json:"password_hasher"`
}

type userResponse struct {
	ID string `json:"id"`
}

func apiError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]any{
		"errors": []map[string]string{{"message": message}},
	})
}

func (s *Server) createUser(c echo.Context) error {
	if s.throttled(c) {
		return apiError(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, http.StatusBadRequest, "invalid request body")
	}
	if len(req.EmailAddress) == 0 {
		return apiError(c, http.StatusUnprocessableEntity, "email_address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++

	for _, existing := range s.users {
		for _, email := range existing.Emails {
			if strings.EqualFold(email, req.EmailAddress[0]) {
				return apiError(c, http.StatusUnprocessableEntity, "that email address is taken")
			}
		}
	}

	s.nextID++
	u := &StoredUser{
		ID:             fmt.Sprintf("user_%d", s.nextID),
		ExternalID:     req.ExternalID,
		Emails:         req.EmailAddress,
		PasswordDigest: req.PasswordDigest,
		PasswordHasher: req.PasswordHasher,
	}
	s.users[u.ID] = u

	return c.JSON(http.StatusOK, userResponse{ID: u.ID})
}

func (s *Server) listUsers(c echo.Context) error {
	if s.throttled(c) {
		return apiError(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	email := c.QueryParam("email_address")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++

	out := []userResponse{}
	for _, u := range s.users {
		for _, e := range u.Emails {
			if strings.EqualFold(e, email) {
				out = append(out, userResponse{ID: u.ID})
				break
			}
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) updateUser(c echo.Context) error {
	if s.throttled(c) {
		return apiError(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, http.StatusBadRequest, "invalid request body")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++

	u, ok := s.users[c.Param("id")]
	if !ok {
		return apiError(c, http.StatusNotFound, "user not found")
	}

	if req.PrimaryEmailVerified != nil {
		u.EmailVerified = *req.PrimaryEmailVerified
	}
	if req.PasswordDigest != "" {
		u.PasswordDigest = req.PasswordDigest
		u.PasswordHasher = req.PasswordHasher
	}

	return c.JSON(http.StatusOK, userResponse{ID: u.ID})
}
