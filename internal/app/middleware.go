package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger *slog.Logger
	Config *Config
}

// ActorMiddleware builds the request actor from the forwarded identity
// headers. Authentication itself lives in the gateway in front of this
// service; the core only consumes the capability set it forwards.
func ActorMiddleware(cfg *Config) func(http.Handler) http.Handler {
	defaultBackdate := 1
	if cfg != nil && cfg.BackdateLimitDays > 0 {
		defaultBackdate = cfg.BackdateLimitDays
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.Actor{
				Name: r.Header.Get("X-Actor-Name"),
				Role: shared.Role(r.Header.Get("X-Actor-Role")),
				Unit: shared.BusinessUnit(r.Header.Get("X-Actor-Unit")),
			}
			if actor.Name == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if actor.Role != shared.RoleManager {
				actor.Role = shared.RoleEmployee
			}
			if actor.Unit == "" {
				actor.Unit = shared.UnitAll
			}
			actor.CanEdit = r.Header.Get("X-Actor-Can-Edit") == "true"
			actor.CanDelete = r.Header.Get("X-Actor-Can-Delete") == "true"
			if days, err := strconv.Atoi(r.Header.Get("X-Actor-Backdate-Days")); err == nil && days > 0 {
				actor.CanBackdate = true
				actor.BackdateDays = days
			} else if r.Header.Get("X-Actor-Can-Backdate") == "true" {
				actor.CanBackdate = true
				actor.BackdateDays = defaultBackdate
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}

// MiddlewareStack installs the shared middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
}
