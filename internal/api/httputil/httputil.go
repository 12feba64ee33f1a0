// Package httputil holds the request binding and response helpers shared by
// the API handler packages. Every failure body has the shape
// {"message": "..."}.
package httputil

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Message aborts with status and {"message": msg}.
func Message(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}

// ServerError logs err with the request route and answers a generic 500.
func ServerError(c *gin.Context, op string, err error) {
	slog.Error("request failed",
		"op", op,
		"path", c.FullPath(),
		"request_id", c.GetString("request_id"),
		"error", err,
	)
	Message(c, http.StatusInternalServerError, "Server error.")
}

// BindJSON decodes the body into dst and runs its binding tags. On failure it
// answers 422 with the first validation message and returns false.
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		Message(c, http.StatusUnprocessableEntity, ValidationMessage(err))
		return false
	}
	return true
}

// ValidationMessage renders err as a short sentence naming the first
// offending field.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldMessage(verrs[0])
	}
	if errors.Is(err, io.EOF) {
		return "Request body is required."
	}
	return "Request body is not valid JSON."
}

func fieldMessage(fe validator.FieldError) string {
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", field)
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters.", field, fe.Param())
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", field, fe.Param())
	case "len":
		return fmt.Sprintf("The %s field must be %s characters.", field, fe.Param())
	case "numeric":
		return fmt.Sprintf("The %s field must be a number.", field)
	case "eqfield":
		return fmt.Sprintf("The %s field confirmation does not match.", toSnake(fe.Param()))
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", field)
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}

// toSnake turns a Go field name into the JSON key style used by the API.
func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
