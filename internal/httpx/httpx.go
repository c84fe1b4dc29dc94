// Package httpx holds the small response helpers shared by the handler
// groups.
package httpx

import (
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
)

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// Error writes {"error": msg} with the given status code.
func Error(w http.ResponseWriter, r *http.Request, status int, msg string) {
	JSON(w, r, status, map[string]string{"error": msg})
}

// Fault logs a storage failure and answers 500. The request's log entry is
// used when httplog set one up; log is the fallback.
func Fault(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if entry, ok := chimw.GetLogEntry(r).(*httplog.RequestLoggerEntry); ok && entry != nil {
		log = entry.Logger
	}
	log.ErrorContext(r.Context(), "storage fault",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("err", err),
	)
	Error(w, r, http.StatusInternalServerError, "internal error")
}

// ParseID reads the {id} route parameter.
func ParseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	return render.DecodeJSON(r.Body, v)
}

// Created answers 201 with v and a Location pointing at the new resource.
func Created(w http.ResponseWriter, r *http.Request, id int64, v any) {
	w.Header().Set("Location", path.Join(r.URL.Path, strconv.FormatInt(id, 10)))
	JSON(w, r, http.StatusCreated, v)
}
