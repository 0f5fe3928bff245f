// Package router assembles the HTTP surface: patient booking routes, the
// read-side schedule queries, staff-only admin routes behind JWT, the live
// queue board websocket, and the operational endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opdesk/clinic-queue/internal/booking"
	"github.com/opdesk/clinic-queue/internal/doctor"
	httpmiddleware "github.com/opdesk/clinic-queue/internal/http/middleware"
	"github.com/opdesk/clinic-queue/internal/queueboard"
	"github.com/opdesk/clinic-queue/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	BookingHandler *booking.Handler
	DoctorHandler  *doctor.Handler
	BoardHandler   *queueboard.Handler
	MetricsHandler http.Handler

	StaffJWTSecret     string
	CORSAllowedOrigins []string

	// BookingRatePerSecond throttles the public booking endpoints per IP.
	// Zero disables the limiter.
	BookingRatePerSecond float64
	BookingRateBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: booking, schedule queries, the queue board.
	r.Group(func(public chi.Router) {
		public.Get("/health", handleHealth)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		if cfg.BookingHandler != nil {
			bookRoutes := cfg.BookingHandler.Routes()
			if cfg.BookingRatePerSecond > 0 {
				public.With(httpmiddleware.RateLimit(cfg.BookingRatePerSecond, cfg.BookingRateBurst)).
					Mount("/bookings", bookRoutes)
			} else {
				public.Mount("/bookings", bookRoutes)
			}
			public.Route("/doctors/{doctorID}", func(r chi.Router) {
				r.Get("/schedule", cfg.BookingHandler.Schedule)
				r.Get("/delay", cfg.BookingHandler.Delay)
			})
		}

		if cfg.BoardHandler != nil {
			public.Get("/board/ws", cfg.BoardHandler.ServeWS)
		}
	})

	// Staff routes: profile management, status changes, break declarations.
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.StaffJWT(cfg.StaffJWTSecret))
		if cfg.DoctorHandler != nil {
			admin.Mount("/doctors", cfg.DoctorHandler.Routes())
		}
		if cfg.BookingHandler != nil {
			admin.Mount("/", cfg.BookingHandler.AdminRoutes())
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
