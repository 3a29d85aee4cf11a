package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"billova/internal/core"
	"billova/internal/i18n"
	applog "billova/internal/log"
	"billova/internal/services"
)

// pageData is the shared template context. Handlers fill what their page
// needs and leave the rest zero.
type pageData struct {
	User     *core.User
	Settings *core.UserSettings
	Error    string
	Notice   string

	Expenses   []core.Expense
	Categories []core.Category
	Months     []core.MonthGroup

	CurrencyChoices []i18n.CurrencyChoice
	LanguageChoices []string
	FormatChoices   []core.NumericFormat

	Form map[string]string
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(),
			"Template rendering failed", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	user, _ := s.sessionUser(r)
	s.render(w, r, "home.html", pageData{User: user})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessionUser(r); ok {
		http.Redirect(w, r, "/expenses", http.StatusSeeOther)
		return
	}
	s.render(w, r, "login.html", pageData{})
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, "login.html", pageData{Error: "Invalid form submission."})
		return
	}
	identifier := sanitizeInput(r.PostFormValue("identifier"))
	password := r.PostFormValue("password")

	user, err := s.accounts.Authenticate(r.Context(), identifier, password)
	if err != nil {
		s.render(w, r, "login.html", pageData{
			Error: "Invalid username/email or password.",
			Form:  map[string]string{"identifier": identifier},
		})
		return
	}

	token, expiresAt, err := s.accounts.StartSession(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to start session", "user_id", user.ID, "error", err)
		s.render(w, r, "login.html", pageData{Error: "Login failed. Please try again."})
		return
	}
	s.setSessionCookie(w, token, expiresAt)
	http.Redirect(w, r, "/expenses", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if err := s.accounts.EndSession(r.Context(), cookie.Value); err != nil {
			slog.WarnContext(r.Context(), "Failed to end session", "error", err)
		}
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "signup.html", pageData{})
}

func (s *Server) handleSignupSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, "signup.html", pageData{Error: "Invalid form submission."})
		return
	}
	username := sanitizeInput(r.PostFormValue("username"))
	email := sanitizeInput(r.PostFormValue("email"))
	form := map[string]string{"username": username, "email": email}

	user, err := s.accounts.Signup(r.Context(), username, email,
		r.PostFormValue("password"), r.PostFormValue("password_confirm"))
	if err != nil {
		msg := "Signup failed. Please check your input."
		switch {
		case errors.Is(err, services.ErrPasswordMismatch):
			msg = "The passwords do not match."
		case errors.Is(err, core.ErrDuplicate):
			msg = "Username or email is already taken."
		case errors.Is(err, core.ErrInvalidInput):
			msg = "Username, a valid email and a password are required."
		}
		s.render(w, r, "signup.html", pageData{Error: msg, Form: form})
		return
	}

	token, expiresAt, err := s.accounts.StartSession(r.Context(), user.ID)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	s.setSessionCookie(w, token, expiresAt)
	http.Redirect(w, r, "/expenses", http.StatusSeeOther)
}

func (s *Server) handlePasswordResetPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "password_reset.html", pageData{})
}

// handlePasswordResetSubmit acknowledges the request. No mailer is
// configured; the request is logged for the operator instead.
func (s *Server) handlePasswordResetSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, "password_reset.html", pageData{Error: "Invalid form submission."})
		return
	}
	email := sanitizeInput(r.PostFormValue("email"))
	slog.InfoContext(r.Context(), "Password reset requested", "email", email)
	s.render(w, r, "password_reset.html", pageData{
		Notice: "If an account exists for that address, instructions will follow.",
	})
}

func (s *Server) handleExpensesPage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	p := s.parsePagination(r)

	expenses, _, err := s.expenses.List(r.Context(), user.ID, p.PageSize, p.Offset())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list expenses", "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	settings, err := s.accounts.Settings(r.Context(), user.ID)
	if err != nil {
		fallback := core.DefaultSettings(user.ID)
		settings = &fallback
	}
	s.render(w, r, "expenses.html", pageData{User: user, Settings: settings, Expenses: expenses})
}

func (s *Server) handleCategoriesPage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	categories, err := s.categories.ListVisible(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list categories", "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, "categories.html", pageData{User: user, Categories: categories})
}

func (s *Server) handleMonthlyPage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	p := s.parsePagination(r)

	months, _, err := s.expenses.MonthlySummary(r.Context(), user.ID, p.PageSize, p.Offset())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to build monthly summary", "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	settings, err := s.accounts.Settings(r.Context(), user.ID)
	if err != nil {
		fallback := core.DefaultSettings(user.ID)
		settings = &fallback
	}
	s.render(w, r, "monthly.html", pageData{User: user, Settings: settings, Months: months})
}

func (s *Server) handleAccountPage(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	settings, err := s.accounts.Settings(r.Context(), user.ID)
	if err != nil {
		fallback := core.DefaultSettings(user.ID)
		settings = &fallback
	}
	s.render(w, r, "account.html", pageData{User: user, Settings: settings})
}

func (s *Server) accountSettingsData(r *http.Request) pageData {
	user := currentUser(r.Context())
	settings, err := s.accounts.Settings(r.Context(), user.ID)
	if err != nil {
		fallback := core.DefaultSettings(user.ID)
		settings = &fallback
	}
	return pageData{
		User:            user,
		Settings:        settings,
		CurrencyChoices: i18n.CurrencyChoices(),
		LanguageChoices: core.Languages,
		FormatChoices:   core.NumericFormats,
	}
}

func (s *Server) handleAccountSettingsPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "account_settings.html", s.accountSettingsData(r))
}

func (s *Server) handleAccountSettingsSubmit(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	if err := r.ParseForm(); err != nil {
		data := s.accountSettingsData(r)
		data.Error = "Invalid form submission."
		s.render(w, r, "account_settings.html", data)
		return
	}

	_, err := s.accounts.UpdateSettings(r.Context(), user.ID, core.UserSettings{
		Currency:      sanitizeInput(r.PostFormValue("currency")),
		Language:      sanitizeInput(r.PostFormValue("language")),
		Timezone:      sanitizeInput(r.PostFormValue("timezone")),
		NumericFormat: core.NumericFormat(sanitizeInput(r.PostFormValue("numeric_format"))),
	})
	data := s.accountSettingsData(r)
	if err != nil {
		data.Error = "Could not save preferences: " + err.Error()
	} else {
		data.Notice = "Preferences saved."
	}
	s.render(w, r, "account_settings.html", data)
}

func (s *Server) handleEmailChange(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/account/settings", http.StatusSeeOther)
		return
	}

	err := s.accounts.UpdateEmail(r.Context(), user.ID, sanitizeInput(r.PostFormValue("email")))
	data := s.accountSettingsData(r)
	switch {
	case errors.Is(err, core.ErrDuplicate):
		data.Error = "That email address is already in use."
	case errors.Is(err, core.ErrInvalidInput):
		data.Error = "Please enter a valid email address."
	case err != nil:
		data.Error = "Could not update the email address."
	default:
		data.Notice = "Email address updated."
		data.User.Email = sanitizeInput(r.PostFormValue("email"))
	}
	s.render(w, r, "account_settings.html", data)
}

func (s *Server) handleProfilePictureUpload(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	if err := r.ParseMultipartForm(5 << 20); err != nil {
		data := s.accountSettingsData(r)
		data.Error = "Expected an image upload."
		s.render(w, r, "account_settings.html", data)
		return
	}
	file, header, err := r.FormFile("picture")
	if err != nil {
		data := s.accountSettingsData(r)
		data.Error = "Missing image upload."
		s.render(w, r, "account_settings.html", data)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err == nil {
		_, err = s.accounts.SaveProfilePicture(r.Context(), user.ID, header.Filename, image)
	}
	data := s.accountSettingsData(r)
	if err != nil {
		data.Error = "Could not save the profile picture."
		if errors.Is(err, core.ErrInvalidInput) {
			data.Error = "Only JPEG and PNG images are supported."
		}
	} else {
		data.Notice = "Profile picture updated."
	}
	s.render(w, r, "account_settings.html", data)
}

func (s *Server) handleAccountDeletePage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "account_delete.html", pageData{User: currentUser(r.Context())})
}

func (s *Server) handleAccountDeleteSubmit(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	if err := r.ParseForm(); err != nil {
		s.render(w, r, "account_delete.html", pageData{User: user, Error: "Invalid form submission."})
		return
	}

	confirmation := sanitizeInput(r.PostFormValue("confirm_username"))
	if err := s.accounts.DeleteAccount(r.Context(), user, confirmation); err != nil {
		msg := "Could not delete the account."
		if errors.Is(err, services.ErrConfirmationMismatch) {
			msg = "Please type your username exactly to confirm."
		}
		s.render(w, r, "account_delete.html", pageData{User: user, Error: msg})
		return
	}

	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
