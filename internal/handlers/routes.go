package handlers

import "net/http"

// Routes builds the application router.
func (h *Handlers) Routes(staticDir string) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /auth/register", h.Register)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/logout", h.Logout)

	protected := func(fn http.HandlerFunc) http.Handler { return h.AuthMiddleware(fn) }
	mux.Handle("GET /expenses", protected(h.ListExpenses))
	mux.Handle("GET /stats", protected(h.Statistics))
	mux.Handle("GET /list", protected(h.ListData))
	mux.Handle("GET /audit", protected(h.AuditData))
	mux.Handle("POST /add", protected(h.AddExpense))
	mux.Handle("POST /edit", protected(h.EditExpense))
	mux.Handle("POST /delete", protected(h.DeleteExpense))

	return h.RequestLogger(mux)
}
