// Package http wires the REST API and the server-rendered pages.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"

	"billova/internal/config"
	"billova/internal/i18n"
	applog "billova/internal/log"
	"billova/internal/middleware/ratelimit"
	"billova/internal/middleware/security"
	"billova/internal/middleware/trace"
	"billova/internal/services"
	appweb "billova/web"
)

type Server struct {
	http.Server

	cfg        *config.Config
	templates  *template.Template
	accounts   *services.AccountService
	expenses   *services.ExpenseService
	categories *services.CategoryService
	ocr        *services.OCRService

	loginLimiter *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server. ocr may be nil when no vendor is configured.
func NewServer(cfg *config.Config, accounts *services.AccountService, expenses *services.ExpenseService, categories *services.CategoryService, ocr *services.OCRService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		cfg:        cfg,
		accounts:   accounts,
		expenses:   expenses,
		categories: categories,
		ocr:        ocr,
		loginLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: 10,
		}),
	}

	funcs := template.FuncMap{
		"formatPrice": i18n.FormatPrice,
	}
	t, err := template.New("").Funcs(funcs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets from the embedded FS, uploaded media from disk.
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}
	mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.MediaDir))))

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	// REST API. Authentication happens in requireAPIUser; ownership in the
	// service layer.
	mux.HandleFunc("GET /api/v1/expenses/", s.requireAPIUser(s.handleListExpenses))
	mux.HandleFunc("POST /api/v1/expenses/", s.requireAPIUser(s.handleCreateExpense))
	mux.HandleFunc("POST /api/v1/expenses/ocr/", s.requireAPIUser(s.handleOCRIngest))
	mux.HandleFunc("GET /api/v1/expenses/{id}", s.requireAPIUser(s.handleGetExpense))
	mux.HandleFunc("PUT /api/v1/expenses/{id}", s.requireAPIUser(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/v1/expenses/{id}", s.requireAPIUser(s.handleDeleteExpense))

	mux.HandleFunc("GET /api/v1/categories/", s.requireAPIUser(s.handleListCategories))
	mux.HandleFunc("POST /api/v1/categories/", s.requireAPIUser(s.handleCreateCategory))
	mux.HandleFunc("GET /api/v1/categories/{id}", s.requireAPIUser(s.handleGetCategory))
	mux.HandleFunc("PUT /api/v1/categories/{id}", s.requireAPIUser(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/v1/categories/{id}", s.requireAPIUser(s.handleDeleteCategory))

	mux.HandleFunc("GET /api/v1/usersettings/", s.requireAPIUser(s.handleListSettings))
	mux.HandleFunc("GET /api/v1/usersettings/{id}", s.requireAPIUser(s.handleGetSettings))
	mux.HandleFunc("PUT /api/v1/usersettings/{id}", s.requireAPIUser(s.handleUpdateSettings))

	mux.HandleFunc("GET /api/v1/monthlyExpenses/", s.requireAPIUser(s.handleMonthlyExpenses))
	mux.HandleFunc("POST /api/v1/frontendLogs/", s.requireAPIUser(s.handleFrontendLog))

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.Handle("POST /login", s.credentialLimiter(s.handleLoginSubmit))
	mux.HandleFunc("GET /logout", s.requirePageUser(s.handleLogout))
	mux.HandleFunc("GET /signup", s.handleSignupPage)
	mux.Handle("POST /signup", s.credentialLimiter(s.handleSignupSubmit))
	mux.HandleFunc("GET /password-reset", s.handlePasswordResetPage)
	mux.HandleFunc("POST /password-reset", s.handlePasswordResetSubmit)

	mux.HandleFunc("GET /expenses", s.requirePageUser(s.handleExpensesPage))
	mux.HandleFunc("GET /categories", s.requirePageUser(s.handleCategoriesPage))
	mux.HandleFunc("GET /monthly", s.requirePageUser(s.handleMonthlyPage))

	mux.HandleFunc("GET /account", s.requirePageUser(s.handleAccountPage))
	mux.HandleFunc("GET /account/settings", s.requirePageUser(s.handleAccountSettingsPage))
	mux.HandleFunc("POST /account/settings", s.requirePageUser(s.handleAccountSettingsSubmit))
	mux.HandleFunc("POST /account/email", s.requirePageUser(s.handleEmailChange))
	mux.HandleFunc("POST /account/picture", s.requirePageUser(s.handleProfilePictureUpload))
	mux.HandleFunc("GET /account/delete", s.requirePageUser(s.handleAccountDeletePage))
	mux.HandleFunc("POST /account/delete", s.requirePageUser(s.handleAccountDeleteSubmit))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(extractClientIP)
	httpLogger := applog.New(applog.DefaultConfig()).WithComponent("http")
	s.Server = http.Server{
		Addr:    ":" + cfg.Port,
		Handler: tracer.Middleware(headers.Middleware(applog.Middleware(httpLogger)(mux))),
	}
	return s
}

// credentialLimiter rate-limits the login and signup form posts per client IP.
func (s *Server) credentialLimiter(next http.HandlerFunc) http.Handler {
	return s.loginLimiter.Middleware(extractClientIP, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded on credential endpoint",
			"path", r.URL.Path, "client_ip", extractClientIP(r))
		w.Header().Set("Retry-After", "60")
		http.Error(w, "Too many attempts. Please try again later.", http.StatusTooManyRequests)
	})(next)
}

// Shutdown stops the HTTP server and the rate limiter cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.loginLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
