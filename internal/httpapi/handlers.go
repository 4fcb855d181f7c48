package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nisimpson/userstore"
)

// Handler serves the user routes on top of a Service.
type Handler struct {
	svc *userstore.Service
}

// NewHandler creates a Handler.
func NewHandler(svc *userstore.Service) *Handler {
	return &Handler{svc: svc}
}

func bindFields(c *gin.Context) (userstore.UserFields, error) {
	var fields userstore.UserFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		return fields, fmt.Errorf("%w: Error parsing incoming request object", userstore.ErrInvalidInput)
	}
	return fields, nil
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(c *gin.Context) Result {
	fields, err := bindFields(c)
	if err != nil {
		return Fail(err)
	}

	u, err := h.svc.Create(c.Request.Context(), fields)
	if err != nil {
		return Fail(err)
	}
	return Created(u)
}

// GetUser handles GET /users/:userId, where userId is an id or an email.
func (h *Handler) GetUser(c *gin.Context) Result {
	u, err := h.svc.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		return Fail(err)
	}
	return OK(u)
}

// ListUsers handles GET /users?limit=&paginationToken=.
func (h *Handler) ListUsers(c *gin.Context) Result {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Fail(fmt.Errorf("%w: limit %q is not a number", userstore.ErrInvalidInput, raw))
		}
		limit = n
		if limit == 0 {
			return Fail(fmt.Errorf("%w: limit must be positive", userstore.ErrInvalidInput))
		}
	}

	page, err := h.svc.List(c.Request.Context(), limit, c.Query("paginationToken"))
	if err != nil {
		return Fail(err)
	}
	return OK(page)
}

// UpdateUser handles PUT /users/:userId.
func (h *Handler) UpdateUser(c *gin.Context) Result {
	fields, err := bindFields(c)
	if err != nil {
		return Fail(err)
	}

	if err := h.svc.Update(c.Request.Context(), c.Param("userId"), fields); err != nil {
		return Fail(err)
	}
	return NoContent()
}

// DeleteUser handles DELETE /users/:userId.
func (h *Handler) DeleteUser(c *gin.Context) Result {
	if err := h.svc.Delete(c.Request.Context(), c.Param("userId")); err != nil {
		return Fail(err)
	}
	return NoContent()
}

// Health handles GET /healthz.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
