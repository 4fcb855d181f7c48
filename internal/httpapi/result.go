package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nisimpson/userstore"
	"github.com/rs/zerolog"
)

// Result is what a handler produces: a body, no body, or an error. The
// adapter renders it.
type Result struct {
	Status int
	Body   any
	Err    error
}

// OK renders body with 200.
func OK(body any) Result {
	return Result{Status: http.StatusOK, Body: body}
}

// Created renders body with 201.
func Created(body any) Result {
	return Result{Status: http.StatusCreated, Body: body}
}

// NoContent renders an empty 204.
func NoContent() Result {
	return Result{Status: http.StatusNoContent}
}

// Fail renders err with the status it maps to.
func Fail(err error) Result {
	return Result{Status: StatusCode(err), Err: err}
}

// FailWith renders err with an explicit status.
func FailWith(status int, err error) Result {
	return Result{Status: status, Err: err}
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusCode maps a service error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, userstore.ErrInvalidInput), errors.Is(err, userstore.ErrMalformedToken):
		return http.StatusBadRequest
	case errors.Is(err, userstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, userstore.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, userstore.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// render writes r to the response. Server errors are logged with their
// cause and answered with a generic message.
func render(c *gin.Context, r Result) {
	if r.Err != nil {
		message := r.Err.Error()
		switch {
		case r.Status == http.StatusServiceUnavailable:
			zerolog.Ctx(c.Request.Context()).Warn().Err(r.Err).Msg("user store unavailable")
			message = "Service unavailable, try again later"
		case r.Status >= http.StatusInternalServerError:
			zerolog.Ctx(c.Request.Context()).Error().Err(r.Err).Msg("request failed")
			message = "Internal server error"
		}
		c.AbortWithStatusJSON(r.Status, ErrorResponse{Error: message})
		return
	}

	if r.Status == http.StatusNoContent {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(r.Status, r.Body)
}

// HandlerFunc is a gin handler that returns a Result.
type HandlerFunc func(c *gin.Context) Result

// wrap adapts h into a gin handler.
func wrap(h HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		render(c, h(c))
	}
}
