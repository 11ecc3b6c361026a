package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicvoice/booking-engine/internal/http/handlers"
	httpmiddleware "github.com/clinicvoice/booking-engine/internal/http/middleware"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	ToolCalls      *handlers.ToolCallHandler
	AgentJWTSecret string
	MetricsHandler http.Handler
	HealthCheck    http.HandlerFunc
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		if cfg.HealthCheck != nil {
			public.Get("/health", cfg.HealthCheck)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Tool-call surface, scoped to one tenant by the agent JWT.
	r.Route("/toolcalls", func(tc chi.Router) {
		tc.Use(httpmiddleware.AgentJWT(cfg.AgentJWTSecret))
		tc.Post("/check_availability", cfg.ToolCalls.CheckAvailability)
		tc.Post("/reserve_atomic", cfg.ToolCalls.ReserveAtomic)
		tc.Post("/send_otp", cfg.ToolCalls.SendOTP)
		tc.Post("/verify_otp", cfg.ToolCalls.VerifyOTP)
		tc.Post("/confirm_booking", cfg.ToolCalls.ConfirmBooking)
		tc.Post("/send_confirmation_sms", cfg.ToolCalls.SendConfirmationSMS)
		tc.Post("/release_hold", cfg.ToolCalls.ReleaseHold)
		tc.Post("/record_call", cfg.ToolCalls.RecordCall)
	})

	return r
}
