package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"pixgate/dashboard"
	"time"

	"github.com/julienschmidt/httprouter"
)

//go:embed web/templates/*.html web/static/*
var webFS embed.FS

var icons = map[string]string{
	"dollar-sign": "$",
	"activity":    "∿",
	"credit-card": "▭",
	"users":       "☺",
}

type pageData struct {
	Title  string
	Year   int
	Error  string
	Email  string
	User   string
	View   *dashboard.View
	Routes []docRoute
}

type docRoute struct {
	Method  string
	Path    string
	Summary string
}

var apiRoutes = []docRoute{
	{http.MethodPost, "/v1/auth/login", "Login com e-mail e senha"},
	{http.MethodPost, "/v1/auth/refresh", "Renova o token de acesso"},
	{http.MethodGet, "/v1/auth/me", "Usuário autenticado"},
	{http.MethodPost, "/v1/auth/logout", "Revoga os tokens de renovação"},
	{http.MethodPost, "/v1/transactions/transfer", "Cria uma transferência PIX"},
	{http.MethodPost, "/v1/transactions/qrcode", "Cria um QR Code estático ou dinâmico"},
	{http.MethodGet, "/v1/transactions", "Lista transações"},
	{http.MethodGet, "/v1/transactions/:id", "Consulta uma transação"},
	{http.MethodPost, "/v1/transactions/:id/cancel", "Cancela uma transação"},
	{http.MethodPost, "/v1/transactions/:id/refresh", "Atualiza o status junto ao banco"},
	{http.MethodPost, "/v1/pix-keys/validate", "Valida uma chave PIX"},
	{http.MethodGet, "/v1/dashboard", "Resumo do dashboard"},
	{http.MethodGet, "/v1/webhooks", "Lista webhooks"},
	{http.MethodPost, "/v1/webhooks", "Registra um webhook"},
	{http.MethodDelete, "/v1/webhooks/:id", "Remove um webhook"},
}

func parsePages() *template.Template {
	funcs := template.FuncMap{
		"icon": func(name string) string {
			return icons[name]
		},
		"arrow": func(trend string) string {
			if trend == dashboard.TrendDown {
				return "↘"
			}
			return "↗"
		},
	}
	return template.Must(template.New("pages").Funcs(funcs).ParseFS(webFS, "web/templates/*.html"))
}

func (s *Server) registerWeb(router *httprouter.Router) {
	s.route(router, http.MethodGet, "/", s.handleLanding)
	s.route(router, http.MethodGet, "/docs", s.handleDocs)
	s.route(router, http.MethodGet, "/login", s.handleLoginPage)
	s.route(router, http.MethodPost, "/login", s.limitByAddress(s.handleLoginForm))
	s.route(router, http.MethodGet, "/logout", s.handleLogoutPage)
	s.route(router, http.MethodGet, "/dashboard", s.handleDashboardPage)

	static, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic(err)
	}
	router.ServeFiles("/static/*filepath", http.FS(static))
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data *pageData) {
	data.Year = s.now().In(s.location).Year()
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render page "+name, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleLanding(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.render(w, http.StatusOK, "landing", &pageData{Title: "Pagamentos PIX"})
}

func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.render(w, http.StatusOK, "docs", &pageData{Title: "Documentação", Routes: apiRoutes})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, err := s.sessionIdentity(r); err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, "login", &pageData{Title: "Login"})
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "login", &pageData{Title: "Login", Error: "Requisição inválida"})
		return
	}
	email := r.PostFormValue("email")
	_, pair, err := s.login(email, r.PostFormValue("password"), r)
	if err != nil {
		s.render(w, http.StatusUnauthorized, "login", &pageData{Title: "Login", Email: email, Error: "E-mail ou senha inválidos"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    pair.RefreshToken,
		Path:     "/",
		Expires:  s.now().Add(s.tokens.RefreshTTL()),
		HttpOnly: true,
		Secure:   s.conf.Listen.TLS,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleLogoutPage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if identity, err := s.sessionIdentity(r); err == nil {
		if err = s.database.RevokeRefreshTokens(identity.UserId, s.now()); err != nil {
			s.logger.Error("revoke session tokens", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.conf.Listen.TLS,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDashboardPage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity, err := s.sessionIdentity(r)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	view := &dashboard.View{}
	if identity.IsAdmin() || identity.MerchantId != "" {
		if view, err = s.dashboard.Build(identity.Scope(), s.now()); err != nil {
			s.logger.Error("build dashboard", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}
	s.render(w, http.StatusOK, "dashboard", &pageData{Title: "Dashboard", User: identity.Email, View: view})
}
