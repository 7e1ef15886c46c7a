package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"expense-ledger/internal/auth"
	"expense-ledger/internal/ledger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SessionCookieName is the name of the session cookie.
const SessionCookieName = "session"

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	credentials  *auth.Credentials
	resolver     *auth.Resolver
	ledger       *ledger.Ledger
	logger       *zap.Logger
	templateDir  string
	secureCookie bool
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(credentials *auth.Credentials, resolver *auth.Resolver, l *ledger.Ledger,
	logger *zap.Logger, templateDir string, secureCookie bool) *Handlers {
	return &Handlers{
		credentials:  credentials,
		resolver:     resolver,
		ledger:       l,
		logger:       logger,
		templateDir:  templateDir,
		secureCookie: secureCookie,
	}
}

// AuthMiddleware wraps handlers to require authentication. The resolved
// user travels on the request context; requests without one are sent to
// the login page before any store access.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		user, renewed, err := h.resolver.Resolve(r.Context(), cookie.Value)
		if err != nil {
			h.serverError(w, r, "resolve session", err)
			return
		}
		if user == nil {
			// Invalid or expired session, clear the cookie
			h.clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if renewed {
			h.setSessionCookie(w, cookie.Value)
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

// Index sends visitors to the expense list or the login page.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	if h.currentUserID(w, r) != 0 {
		http.Redirect(w, r, "/expenses", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Error   string
	Message string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to expenses
	if h.currentUserID(w, r) != 0 {
		http.Redirect(w, r, "/expenses", http.StatusFound)
		return
	}
	vm := LoginViewModel{}
	if r.URL.Query().Get("registered") == "1" {
		vm.Message = "Account created. Please sign in."
	}
	h.render(w, r, http.StatusOK, "login.html", vm)
}

// Register handles the registration form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, "login.html", LoginViewModel{Error: "Invalid form submission"})
		return
	}

	_, err := h.credentials.Register(r.Context(), r.FormValue("username"), r.FormValue("password"))
	switch {
	case errors.Is(err, auth.ErrValidation), errors.Is(err, auth.ErrUsernameTaken):
		h.render(w, r, http.StatusBadRequest, "login.html", LoginViewModel{Error: err.Error()})
		return
	case err != nil:
		h.serverError(w, r, "register", err)
		return
	}

	http.Redirect(w, r, "/login?registered=1", http.StatusFound)
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, "login.html", LoginViewModel{Error: "Invalid form submission"})
		return
	}

	session, err := h.resolver.Login(r.Context(), strings.TrimSpace(r.FormValue("username")), r.FormValue("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.render(w, r, http.StatusUnauthorized, "login.html", LoginViewModel{Error: err.Error()})
		return
	}
	if err != nil {
		h.serverError(w, r, "login", err)
		return
	}

	h.setSessionCookie(w, session.Token)
	http.Redirect(w, r, "/expenses", http.StatusFound)
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.resolver.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Error("failed to delete session", zap.Error(err))
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// currentUserID resolves the session cookie outside the auth middleware and
// refreshes the cookie when the session was renewed. It returns 0 when there
// is no valid session.
func (h *Handlers) currentUserID(w http.ResponseWriter, r *http.Request) int64 {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return 0
	}
	user, renewed, err := h.resolver.Resolve(r.Context(), cookie.Value)
	if err != nil || user == nil {
		return 0
	}
	if renewed {
		h.setSessionCookie(w, cookie.Value)
	}
	return user.ID
}

// ListData returns the current user's expenses as JSON.
func (h *Handlers) ListData(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.ledger.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, expenses)
}

// AuditData returns the current user's audit trail as JSON.
func (h *Handlers) AuditData(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.AuditTrail(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, entries)
}

// ExpenseItem represents an expense in the list view.
type ExpenseItem struct {
	ID            int64
	Amount        decimal.Decimal
	Category      string
	Description   string
	Time          string
	CategoryStyle CategoryStyle
}

// ListViewModel is the data passed to the list view template.
type ListViewModel struct {
	Total      decimal.Decimal
	Items      []ExpenseItem
	Categories []CategoryDef
}

// ListExpenses renders the list of expenses.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.ledger.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	vm := ListViewModel{Total: decimal.Zero, Categories: categories}
	for _, e := range expenses {
		vm.Total = vm.Total.Add(e.Amount)
		vm.Items = append(vm.Items, ExpenseItem{
			ID:            e.ID,
			Amount:        e.Amount,
			Category:      e.Category,
			Description:   e.Description,
			Time:          e.UpdatedAt.Local().Format("Jan 02, 15:04"),
			CategoryStyle: getCategoryStyle(e.Category),
		})
	}

	h.render(w, r, http.StatusOK, "expenses.html", vm)
}

// AddExpense handles the creation of a new expense from a form or JSON body.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, err = h.ledger.Add(r.Context(), ledger.AddInput{
		Amount:      in.get("amount"),
		Category:    in.get("category"),
		Description: in.get("description"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, "/expenses", http.StatusFound)
}

// EditExpense changes the category of an expense.
func (h *Handlers) EditExpense(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := in.id()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.ledger.Edit(r.Context(), id, in.get("category")); err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, "/expenses", http.StatusFound)
}

// DeleteExpense removes an expense.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := in.id()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.ledger.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, "/expenses", http.StatusFound)
}

// input is a flattened view of either a form or a JSON object body.
type input map[string]string

// maxBodyBytes caps mutation request bodies.
const maxBodyBytes = 1 << 20

func readInput(w http.ResponseWriter, r *http.Request) (input, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		in := make(input, len(raw))
		for k, v := range raw {
			switch v := v.(type) {
			case string:
				in[k] = v
			case json.Number:
				in[k] = v.String()
			case nil:
			default:
				in[k] = fmt.Sprint(v)
			}
		}
		return in, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	in := make(input, len(r.PostForm))
	for k := range r.PostForm {
		in[k] = r.PostForm.Get(k)
	}
	return in, nil
}

func (in input) get(key string) string {
	return in[key]
}

// id parses the expense id. A malformed id can never name an owned
// expense, so it gets the same answer as a foreign one.
func (in input) id() (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(in["id"]), 10, 64)
	if err != nil {
		return 0, ledger.ErrNotFoundOrForbidden
	}
	return id, nil
}

// writeError translates domain errors into responses. Anything unknown is
// a storage failure: it is logged and answered with a 500.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		http.Redirect(w, r, "/login", http.StatusFound)
	case errors.Is(err, ledger.ErrNotFoundOrForbidden):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ledger.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.serverError(w, r, "request failed", err)
	}
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, viewName string, data any) {
	tmpl, err := template.New("base.html").Funcs(templateFuncs).
		ParseFiles(filepath.Join(h.templateDir, "base.html"), filepath.Join(h.templateDir, viewName))
	if err != nil {
		h.serverError(w, r, "template error", err)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, target, data); err != nil {
		h.logger.Error("template execution error", zap.String("view", viewName), zap.Error(err))
	}
}

var templateFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}
