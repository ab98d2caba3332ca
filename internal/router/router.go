// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-seat-hold/internal/handler"
	"github.com/iliyamo/venue-seat-hold/internal/middleware"
)

// SeatRoutes carries what RegisterSeats needs besides the handler.
type SeatRoutes struct {
	// JWTSecret, when set, puts every seat route behind a guest token.
	JWTSecret string
	// AdminKeyHash guards POST /api/layout; empty leaves it open.
	AdminKeyHash string
	// RateLimit wraps hold, release and book.  Nil disables it.
	RateLimit echo.MiddlewareFunc
}

// RegisterRoutes registers the unauthenticated health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/health", handler.Health)
}

// RegisterSession exposes POST /api/session.  The route always exists so
// clients get a clear 404 body when sessions are off.
func RegisterSession(e *echo.Echo, s *handler.SessionHandler) {
	e.POST("/api/session", s.Create)
}

// RegisterSeats registers the layout and seat routes under /api.
func RegisterSeats(e *echo.Echo, h *handler.SeatHandler, opts SeatRoutes) {
	e.POST("/api/layout", h.GenerateLayout, middleware.RequireAdminKey(opts.AdminKeyHash))

	g := e.Group("/api/seats")
	if opts.JWTSecret != "" {
		g.Use(middleware.JWTAuth(opts.JWTSecret))
	}
	g.GET("", h.GetSeats)

	var limited []echo.MiddlewareFunc
	if opts.RateLimit != nil {
		limited = append(limited, opts.RateLimit)
	}
	g.POST("/hold", h.Hold, limited...)
	g.POST("/release", h.Release, limited...)
	g.POST("/book", h.Book, limited...)
}

// RegisterWS mounts the broadcast hub at GET /ws.
func RegisterWS(e *echo.Echo, hub http.Handler) {
	e.GET("/ws", echo.WrapHandler(hub))
}
