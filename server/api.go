package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"pixgate/audit"
	"pixgate/models"
	"pixgate/payments"
	"pixgate/security"
	"pixgate/utility"
	"pixgate/webhook"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

var knownEvents = []string{
	models.EventTransactionCreated,
	models.EventTransactionCompleted,
	models.EventTransactionFailed,
	models.EventTransactionCancelled,
	models.EventTransactionUpdated,
	"*",
}

func (s *Server) registerApi(router *httprouter.Router) {
	s.route(router, http.MethodGet, "/health", s.handleHealth)

	s.route(router, http.MethodPost, "/v1/auth/login", s.limitByAddress(s.handleLogin))
	s.route(router, http.MethodPost, "/v1/auth/refresh", s.limitByAddress(s.handleRefresh))
	s.route(router, http.MethodGet, "/v1/auth/me", s.requireAuth(s.handleMe))
	s.route(router, http.MethodPost, "/v1/auth/logout", s.requireAuth(s.handleLogout))

	s.route(router, http.MethodGet, "/v1/transactions", s.requireAuth(s.handleListTransactions))
	s.route(router, http.MethodGet, "/v1/transactions/:id", s.requireAuth(s.handleGetTransaction))
	// static and wildcard segments cannot share a position, so POST routes dispatch on the segment value
	router.POST("/v1/transactions/:id", dispatch("id", map[string]httprouter.Handle{
		"transfer": s.observe("/v1/transactions/transfer", s.requireAuth(s.handleCreateTransfer)),
		"qrcode":   s.observe("/v1/transactions/qrcode", s.requireAuth(s.handleCreateQRCode)),
	}))
	router.POST("/v1/transactions/:id/:action", dispatch("action", map[string]httprouter.Handle{
		"cancel":  s.observe("/v1/transactions/:id/cancel", s.requireAuth(s.handleCancelTransaction)),
		"refresh": s.observe("/v1/transactions/:id/refresh", s.requireAuth(s.handleRefreshTransaction)),
	}))

	s.route(router, http.MethodPost, "/v1/pix-keys/validate", s.requireAuth(s.handleValidatePixKey))
	s.route(router, http.MethodGet, "/v1/dashboard", s.requireAuth(s.handleDashboard))

	s.route(router, http.MethodGet, "/v1/webhooks", s.requireAuth(s.handleListWebhooks))
	s.route(router, http.MethodPost, "/v1/webhooks", s.requireAuth(s.handleCreateWebhook))
	s.route(router, http.MethodDelete, "/v1/webhooks/:id", s.requireAuth(s.handleDeleteWebhook))

	s.route(router, http.MethodGet, "/v1/admin/providers", s.requireAdmin(s.handleProviders))
	s.route(router, http.MethodGet, "/v1/admin/audit", s.requireAdmin(s.handleAudit))
	s.route(router, http.MethodGet, "/v1/admin/merchants", s.requireAdmin(s.handleMerchants))
}

func dispatch(param string, handlers map[string]httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		if handle, ok := handlers[params.ByName(param)]; ok {
			handle(w, r, params)
			return
		}
		writeError(w, http.StatusNotFound, "route not found")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pixgate",
		"time":    s.now().UTC().Format(time.RFC3339),
	})
}

// transactionResult writes the transaction; a provider failure still returns the stored failed transaction
func (s *Server) transactionResult(w http.ResponseWriter, r *http.Request, tx *models.Transaction, err error, status int) {
	if err != nil {
		if tx != nil && errors.Is(err, payments.ErrProviderFailure) {
			writeJSON(w, http.StatusBadGateway, &errorBody{
				Error:       err.Error(),
				Code:        http.StatusBadGateway,
				Transaction: tx,
			})
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, tx)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req payments.TransferRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tx, err := s.payments.CreateTransfer(r.Context(), identityOf(r).Actor(), &req)
	s.transactionResult(w, r, tx, err, http.StatusCreated)
}

func (s *Server) handleCreateQRCode(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req payments.QRCodeRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tx, err := s.payments.CreateQRCode(r.Context(), identityOf(r).Actor(), &req)
	s.transactionResult(w, r, tx, err, http.StatusCreated)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	tx, err := s.payments.GetTransaction(r.Context(), identityOf(r).Actor(), params.ByName("id"))
	s.transactionResult(w, r, tx, err, http.StatusOK)
}

func (s *Server) handleCancelTransaction(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	tx, err := s.payments.CancelTransaction(r.Context(), identityOf(r).Actor(), params.ByName("id"))
	s.transactionResult(w, r, tx, err, http.StatusOK)
}

func (s *Server) handleRefreshTransaction(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	tx, err := s.payments.RefreshStatus(r.Context(), identityOf(r).Actor(), params.ByName("id"))
	s.transactionResult(w, r, tx, err, http.StatusOK)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	filter := models.TransactionFilter{
		Status:    models.TransactionStatus(query.Get("status")),
		Type:      models.TransactionType(query.Get("type")),
		MinAmount: int64(utility.ToInt(query.Get("min_amount"), 0)),
		MaxAmount: int64(utility.ToInt(query.Get("max_amount"), 0)),
		Limit:     utility.ToInt(query.Get("limit"), 0),
		Offset:    utility.ToInt(query.Get("offset"), 0),
	}
	identity := identityOf(r)
	if identity.IsAdmin() {
		filter.MerchantId = query.Get("merchant_id")
	}
	var err error
	if filter.From, err = s.parseTime(query.Get("from")); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.To, err = s.parseTime(query.Get("to")); err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.payments.ListTransactions(r.Context(), identity.Actor(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// parseTime accepts RFC 3339 timestamps or plain dates in the configured time zone
func (s *Server) parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, s.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", payments.ErrInvalidRequest, value)
	}
	return t, nil
}

type pixKeyRequest struct {
	PixKey     string            `json:"pix_key"`
	PixKeyType models.PixKeyType `json:"pix_key_type"`
	Provider   string            `json:"provider,omitempty"`
}

func (s *Server) handleValidatePixKey(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req pixKeyRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	info, err := s.payments.ValidatePixKey(r.Context(), identityOf(r).Actor(), req.PixKey, req.PixKeyType, req.Provider)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity := identityOf(r)
	if !identity.IsAdmin() && identity.MerchantId == "" {
		writeError(w, http.StatusForbidden, payments.ErrForbidden.Error())
		return
	}
	view, err := s.dashboard.Build(identity.Scope(), s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// webhookMerchant is the merchant whose webhooks the caller manages
func webhookMerchant(r *http.Request) (string, error) {
	identity := identityOf(r)
	merchantId := identity.MerchantId
	if identity.IsAdmin() {
		if requested := r.URL.Query().Get("merchant_id"); requested != "" {
			merchantId = requested
		}
	}
	if merchantId == "" {
		return "", fmt.Errorf("%w: merchant is required", payments.ErrInvalidRequest)
	}
	return merchantId, nil
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	merchantId, err := webhookMerchant(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.database.GetWebhooks(merchantId)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Webhook{}
	}
	writeJSON(w, http.StatusOK, list)
}

type webhookRequest struct {
	URL        string   `json:"url"`
	Events     []string `json:"events"`
	MaxRetries int      `json:"max_retries"`
	Timeout    int      `json:"timeout"`
}

func (req *webhookRequest) validate(allowPrivate bool) error {
	target, err := url.Parse(req.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) address", payments.ErrInvalidRequest)
	}
	if !allowPrivate && webhook.ValidateTarget(req.URL) != nil {
		return fmt.Errorf("%w: url must point to a public host", payments.ErrInvalidRequest)
	}
	for _, event := range req.Events {
		if !utility.Contains(knownEvents, event) {
			return fmt.Errorf("%w: unknown event %q", payments.ErrInvalidRequest, event)
		}
	}
	if req.MaxRetries < 0 || req.MaxRetries > 10 {
		return fmt.Errorf("%w: max_retries must be between 0 and 10", payments.ErrInvalidRequest)
	}
	if req.Timeout < 0 || req.Timeout > 120 {
		return fmt.Errorf("%w: timeout must be between 0 and 120 seconds", payments.ErrInvalidRequest)
	}
	return nil
}

type webhookCreated struct {
	*models.Webhook
	Secret string `json:"secret"`
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	merchantId, err := webhookMerchant(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req webhookRequest
	if err = decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err = req.validate(s.conf != nil && s.conf.Webhooks.AllowPrivate); err != nil {
		s.fail(w, r, err)
		return
	}
	secret, err := security.RandomSecret(32)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := s.now()
	hook := &models.Webhook{
		Id:         uuid.NewString(),
		MerchantId: merchantId,
		URL:        req.URL,
		Events:     req.Events,
		Secret:     secret,
		Active:     true,
		MaxRetries: req.MaxRetries,
		Timeout:    req.Timeout,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err = s.database.AddWebhook(hook); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.FeatureEvent("Webhook", merchantId, fmt.Sprintf("webhook %s registered for %s", hook.Id, hook.URL))
	// the secret is only ever returned here
	writeJSON(w, http.StatusCreated, &webhookCreated{Webhook: hook, Secret: secret})
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	merchantId, err := webhookMerchant(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err = s.database.DeleteWebhook(merchantId, params.ByName("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type providerStatus struct {
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	Registered bool       `json:"registered"`
	Active     bool       `json:"active"`
	Priority   int        `json:"priority"`
	Health     string     `json:"health"`
	Breaker    string     `json:"breaker"`
	CheckedAt  *time.Time `json:"checked_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Methods    []string   `json:"methods,omitempty"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stored, err := s.database.GetProviders()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	byCode := make(map[string]*providerStatus)
	var list []*providerStatus
	for _, p := range stored {
		status := &providerStatus{
			Code:     p.Code,
			Name:     p.Name,
			Active:   p.Active,
			Priority: p.Priority,
			Health:   p.HealthStatus,
			Breaker:  s.manager.BreakerState(p.Code).String(),
		}
		byCode[p.Code] = status
		list = append(list, status)
	}
	for _, p := range s.manager.Registry().All() {
		status, ok := byCode[p.Code()]
		if !ok {
			status = &providerStatus{Code: p.Code(), Name: p.Name(), Breaker: s.manager.BreakerState(p.Code()).String()}
			byCode[p.Code()] = status
			list = append(list, status)
		}
		status.Registered = true
		status.Methods = p.SupportedMethods()
	}
	if s.health != nil {
		for _, report := range s.health.Reports() {
			status, ok := byCode[report.Code]
			if !ok || report.CheckedAt.IsZero() {
				continue
			}
			checkedAt := report.CheckedAt
			status.Health = report.Status
			status.CheckedAt = &checkedAt
			status.Error = report.Error
		}
	}
	if list == nil {
		list = []*providerStatus{}
	}
	writeJSON(w, http.StatusOK, list)
}

type auditPage struct {
	Items  []*models.AuditLog `json:"items"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit is disabled")
		return
	}
	query := r.URL.Query()
	filter := models.AuditFilter{
		MerchantId:    query.Get("merchant_id"),
		UserId:        query.Get("user_id"),
		TransactionId: query.Get("transaction_id"),
		Action:        query.Get("action"),
		Resource:      query.Get("resource"),
		Limit:         utility.ToInt(query.Get("limit"), 0),
		Offset:        utility.ToInt(query.Get("offset"), 0),
	}
	var err error
	if filter.From, err = s.parseTime(query.Get("from")); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.To, err = s.parseTime(query.Get("to")); err != nil {
		s.fail(w, r, err)
		return
	}
	items, total, err := s.audit.Query(filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, &auditPage{Items: items, Total: total, Limit: audit.Limit(filter.Limit), Offset: filter.Offset})
}

func (s *Server) handleMerchants(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	merchants, err := s.database.GetMerchants()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if status := r.URL.Query().Get("active"); status != "" {
		active, _ := strconv.ParseBool(status)
		filtered := make([]*models.Merchant, 0, len(merchants))
		for _, m := range merchants {
			if m.Active == active {
				filtered = append(filtered, m)
			}
		}
		merchants = filtered
	}
	if merchants == nil {
		merchants = []*models.Merchant{}
	}
	writeJSON(w, http.StatusOK, merchants)
}
