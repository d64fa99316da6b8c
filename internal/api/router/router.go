package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/doctor-booking-engine/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/doctor-booking-engine/internal/http/middleware"
	"github.com/wolfman30/doctor-booking-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger  *logging.Logger
	Booking *handlers.BookingHandler
	Billing *handlers.BillingHandler

	// AuthSecret verifies patient and doctor tokens; AdminAuthSecret verifies
	// admin tokens. Admin routes are not mounted without it.
	AuthSecret      string
	AdminAuthSecret string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// BookingLimiter throttles POST /appointments per client IP when set.
	BookingLimiter *httpmiddleware.RateLimiter
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
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

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				writeStatus(w, http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Patient and doctor routes. Anonymous callers may browse and book as
	// guests; /doctors/me requires a signed-in doctor.
	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.CallerJWT(cfg.AuthSecret))

		if cfg.Booking != nil {
			book := http.HandlerFunc(cfg.Booking.Book)
			if cfg.BookingLimiter != nil {
				api.With(httpmiddleware.RateLimit(cfg.BookingLimiter)).Post("/appointments", book)
			} else {
				api.Post("/appointments", book)
			}
			api.Get("/doctors/{doctorID}/slots", cfg.Booking.DaySlots)
			api.Get("/doctors/{doctorID}/slots/first-available", cfg.Booking.FirstAvailable)
			api.Get("/doctors/{doctorID}/booked-slots", cfg.Booking.BookedSlots)
		}

		api.Group(func(me chi.Router) {
			me.Use(httpmiddleware.RequireCaller)
			if cfg.Booking != nil {
				me.Get("/doctors/me/appointments", cfg.Booking.ListMine)
				me.Patch("/doctors/me/appointments/{appointmentID}", cfg.Booking.UpdateStatus)
			}
			if cfg.Billing != nil {
				me.Get("/doctors/me/access", cfg.Billing.Access)
				me.Get("/doctors/me/commission", cfg.Billing.CommissionDashboard)
				me.Put("/doctors/me/schedule", cfg.Billing.UpdateSchedule)
				me.Post("/doctors/me/renewal-request", cfg.Billing.SubmitRenewal)
				me.Post("/doctors/me/commission-payment-request", cfg.Billing.SubmitCommissionPayment)
			}
		})
	})

	if cfg.AdminAuthSecret != "" && cfg.Billing != nil {
		r.Route("/admin/doctors/{doctorID}", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/access", cfg.Billing.DoctorAccess)
			admin.Get("/subscriptions", cfg.Billing.Subscriptions)
			admin.Post("/renewal/approve", cfg.Billing.ApproveRenewal)
			admin.Post("/commission-payment/approve", cfg.Billing.ApproveCommissionPayment)
			admin.Put("/pause", cfg.Billing.SetPaused)
			admin.Put("/deactivation", cfg.Billing.SetDeactivated)
		})
	}

	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
}
