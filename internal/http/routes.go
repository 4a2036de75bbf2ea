package httpx

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/members-console/internal/domain/auth"
	"github.com/target/members-console/internal/session"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Members  MemberService
	Renderer *TemplateRenderer
	StaticFS fs.FS // optional; serves /static/ when set

	// Sessions is the provisioning middleware, normally session.Provide.
	Sessions func(http.Handler) http.Handler
	// GuardWait bounds how long a guarded request waits for initialization.
	GuardWait time.Duration

	Metrics      http.Handler  // optional; serves /metrics when set
	HealthChecks []HealthCheck // optional readiness checks for /healthz
	CookieDomain string
	PageSize     int
	Logger       *slog.Logger
}

// NewRouter wires the console routes. Operational routes skip session
// provisioning; every other route runs inside it.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	authHandlers := &AuthHandlers{T: services.Renderer, Logger: logger}
	memberHandlers := &MemberHandlers{
		Svc:      services.Members,
		T:        services.Renderer,
		PageSize: services.PageSize,
		Logger:   logger,
	}

	app := http.NewServeMux()
	registerAuthRoutes(app, authHandlers)

	guard := session.Guard(session.GuardConfig{
		LoginPath: PathLogin,
		Wait:      services.GuardWait,
		Waiting:   waitingHandler(services.Renderer),
	})
	registerMemberRoutes(app, memberHandlers, guard, forbiddenHandler(services.Renderer))

	app.Handle("GET /{$}", http.RedirectHandler(PathMembers, http.StatusFound))
	app.Handle("/", notFoundHandler(services.Renderer))

	var provisioned http.Handler = app
	if services.Sessions != nil {
		provisioned = services.Sessions(app)
	}

	root := http.NewServeMux()
	health := healthHandler(logger, services.HealthChecks...)
	root.Handle("GET "+PathHealth, health)
	root.Handle("HEAD "+PathHealth, health)
	if services.Metrics != nil {
		root.Handle("GET "+PathMetrics, services.Metrics)
	}
	if services.StaticFS != nil {
		root.Handle("GET "+PathStatic, http.StripPrefix(PathStatic, staticHandler(services.StaticFS)))
	}
	root.Handle("/", chain(provisioned, CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain})))

	return root
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET "+PathLogin, h.LoginPage)
	mux.HandleFunc("POST "+PathLogin, h.Login)
	mux.HandleFunc("POST "+PathLogout, h.Logout)
	mux.HandleFunc("POST "+PathClearError, h.ClearError)
	mux.HandleFunc("GET "+PathStatus, h.Status)
}

func registerMemberRoutes(
	mux *http.ServeMux,
	h *MemberHandlers,
	guard func(http.Handler) http.Handler,
	forbidden http.Handler,
) {
	signedIn := func(fn http.HandlerFunc) http.Handler {
		return guard(fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return chain(fn, guard, RequireRole(domainauth.RoleAdmin, forbidden))
	}

	mux.Handle("GET "+PathMembers, signedIn(h.List))
	mux.Handle("GET "+PathMembers+"/new", admin(h.New))
	mux.Handle("POST "+PathMembers, admin(h.Create))
	mux.Handle("GET "+PathMembers+"/{id}", signedIn(h.Show))
	mux.Handle("GET "+PathMembers+"/{id}/edit", signedIn(h.Edit))
	mux.Handle("POST "+PathMembers+"/{id}", signedIn(h.Update))
	mux.Handle("POST "+PathMembers+"/{id}/delete", admin(h.Delete))

	mux.Handle("GET "+PathRegister, signedIn(h.RegistrationPage))
	mux.Handle("POST "+PathRegister, signedIn(h.CompleteRegistration))
}

// waitingHandler renders the neutral indicator shown while the session
// initializes. The page refreshes itself until the session settles.
func waitingHandler(t *TemplateRenderer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Refresh", "1")
		if err := t.Render(w, http.StatusAccepted, pageWaiting, newPageData(w, r, "Loading", nil)); err != nil {
			http.Error(w, "Loading", http.StatusAccepted)
		}
	})
}

func forbiddenHandler(t *TemplateRenderer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderErrorPage(w, r, t, http.StatusForbidden, "Forbidden",
			"You do not have permission to perform this action.")
	})
}

func notFoundHandler(t *TemplateRenderer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderErrorPage(w, r, t, http.StatusNotFound, "Not found",
			"The page you requested could not be found.")
	})
}

func staticHandler(static fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(static))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		fileServer.ServeHTTP(w, r)
	})
}
