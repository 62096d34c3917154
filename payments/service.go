// Package payments runs PIX transfers and QR code charges through the
// provider manager and keeps the transaction ledger in step with the banks.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"pixgate/internal"
	"pixgate/metrics/counters"
	"pixgate/models"
	"pixgate/providers"
	"pixgate/utility"
	"sync"
	"time"
)

const (
	currency = "BRL"
	// an unanswered transfer the bank still does not know after this long was never executed
	unresolvedGrace = 15 * time.Minute
)

// Auditor records transaction changes; implemented by the audit service
type Auditor interface {
	LogTransaction(tx *models.Transaction, userId, action string, err error)
}

type Service struct {
	store     internal.TransactionStore
	manager   *providers.Manager
	audit     Auditor
	logger    internal.LogHandler
	mutex     sync.RWMutex
	listeners []internal.EventHandler
	now       func() time.Time
}

func NewService(store internal.TransactionStore, manager *providers.Manager) *Service {
	return &Service{
		store:   store,
		manager: manager,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetLogger(logger internal.LogHandler) {
	s.logger = logger
}

func (s *Service) SetAuditor(audit Auditor) {
	s.audit = audit
}

func (s *Service) AddEventListener(listener internal.EventHandler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *Service) CreateTransfer(ctx context.Context, actor Actor, req *TransferRequest) (*models.Transaction, error) {
	if actor.MerchantId == "" {
		return nil, invalid("merchant is required")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	candidates, err := s.candidates(actor.MerchantId, req.Provider, providers.MethodTransfer)
	if err != nil {
		return nil, err
	}

	now := s.now()
	tx := &models.Transaction{
		Id:                 utility.NewUUID(),
		MerchantId:         actor.MerchantId,
		ExternalId:         req.ExternalId,
		Type:               models.TransactionTypeTransfer,
		Status:             models.StatusPending,
		Amount:             req.Amount,
		Currency:           currency,
		Description:        req.Description,
		PayerName:          req.PayerName,
		PayerDocument:      req.PayerDocument,
		PayeeName:          req.PayeeName,
		PayeeDocument:      req.PayeeDocument,
		PayeePixKey:        req.PayeePixKey,
		PayeePixKeyType:    req.PayeePixKeyType,
		PayeeAccountAgency: req.PayeeAccountAgency,
		PayeeAccountNumber: req.PayeeAccountNumber,
		PayeeBank:          req.PayeeISPB,
		Metadata:           req.Metadata,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.assign(tx, candidates[0])
	if err = s.insert(tx, actor); err != nil {
		return nil, err
	}

	// a transfer handed to a bank must run to its answer even if the caller goes away
	var resp *providers.TransferResponse
	used, err := s.manager.Execute(context.WithoutCancel(ctx), candidates, providers.MethodTransfer, func(ctx context.Context, c *providers.Candidate, token string) error {
		r, err := c.Provider.CreateTransfer(ctx, &providers.TransferRequest{
			ExternalId:         tx.ExternalId,
			Amount:             tx.Amount,
			Description:        tx.Description,
			PayerName:          tx.PayerName,
			PayerDocument:      tx.PayerDocument,
			PayerPixKey:        c.Credentials.PixKey,
			PayerAccountAgency: c.Credentials.AccountAgency,
			PayerAccountNumber: c.Credentials.AccountNumber,
			PayerAccountType:   c.Credentials.AccountType,
			PayeeName:          req.PayeeName,
			PayeeDocument:      req.PayeeDocument,
			PayeePixKey:        req.PayeePixKey,
			PayeePixKeyType:    req.PayeePixKeyType,
			PayeeAccountAgency: req.PayeeAccountAgency,
			PayeeAccountNumber: req.PayeeAccountNumber,
			PayeeAccountType:   req.PayeeAccountType,
			PayeeISPB:          req.PayeeISPB,
			AuthToken:          token,
			ClientId:           c.Credentials.ClientId,
		})
		resp = r
		return err
	})
	if used != nil {
		s.assign(tx, used)
	}
	if providers.IsUncertain(err) {
		return s.unresolved(tx, actor, err)
	}
	if err != nil {
		return s.fail(tx, actor, err)
	}

	tx.ProviderTxId = resp.ProviderTxId
	tx.E2EId = resp.E2EId
	s.move(tx, resp.Status)
	if resp.ProcessedAt != nil && tx.ProcessedAt == nil {
		tx.ProcessedAt = resp.ProcessedAt
	}
	if resp.CompletedAt != nil && tx.Status == models.StatusCompleted {
		tx.CompletedAt = resp.CompletedAt
	}
	return tx, s.save(tx, actor, "transaction.transfer", nil)
}

func (s *Service) CreateQRCode(ctx context.Context, actor Actor, req *QRCodeRequest) (*models.Transaction, error) {
	if actor.MerchantId == "" {
		return nil, invalid("merchant is required")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	method := providers.MethodQRCodeDynamic
	if req.Type == QRCodeStatic {
		method = providers.MethodQRCodeStatic
	}
	candidates, err := s.candidates(actor.MerchantId, req.Provider, method)
	if err != nil {
		return nil, err
	}

	now := s.now()
	tx := &models.Transaction{
		Id:            utility.NewUUID(),
		MerchantId:    actor.MerchantId,
		ExternalId:    req.ExternalId,
		Type:          req.transactionType(),
		Status:        models.StatusPending,
		Amount:        req.Amount,
		Currency:      currency,
		Description:   req.Description,
		PayeeName:     req.PayeeName,
		PayeeDocument: req.Document,
		PayeePixKey:   req.PixKey,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.assign(tx, candidates[0])
	if err = s.insert(tx, actor); err != nil {
		return nil, err
	}

	var resp *providers.QRCodeResponse
	used, err := s.manager.Execute(context.WithoutCancel(ctx), candidates, method, func(ctx context.Context, c *providers.Candidate, token string) error {
		key, keyType := req.PixKey, req.PixKeyType
		if key == "" {
			key, keyType = c.Credentials.PixKey, c.Credentials.PixKeyType
		}
		if key == "" {
			return providers.NewProviderError("MISSING_PIX_KEY", "no pix key configured for "+c.Code())
		}
		qr := &providers.QRCodeRequest{
			ExternalId:    tx.ExternalId,
			Amount:        tx.Amount,
			Description:   tx.Description,
			PayeeName:     req.PayeeName,
			PayeeDocument: req.Document,
			PixKey:        key,
			PixKeyType:    keyType,
			ExpiresIn:     req.ExpiresIn,
			AllowChange:   req.AllowChange,
			AuthToken:     token,
			ClientId:      c.Credentials.ClientId,
		}
		var r *providers.QRCodeResponse
		var err error
		if req.Type == QRCodeStatic {
			r, err = c.Provider.CreateQRCodeStatic(ctx, qr)
		} else {
			r, err = c.Provider.CreateQRCodeDynamic(ctx, qr)
		}
		if err == nil {
			tx.PayeePixKey = key
			tx.PayeePixKeyType = keyType
		}
		resp = r
		return err
	})
	if used != nil {
		s.assign(tx, used)
	}
	if err != nil {
		return s.fail(tx, actor, err)
	}

	tx.ProviderTxId = resp.QRCodeId
	tx.QRCode = resp.QRCode
	tx.QRCodeImage = resp.QRCodeImage
	tx.QRCodeExpiresAt = resp.ExpiresAt
	if tx.QRCodeExpiresAt == nil && req.Type == QRCodeDynamic {
		expires := now.Add(time.Duration(req.ExpiresIn) * time.Second)
		tx.QRCodeExpiresAt = &expires
	}
	s.move(tx, resp.Status)
	return tx, s.save(tx, actor, "transaction.qrcode", nil)
}

func (s *Service) GetTransaction(_ context.Context, actor Actor, id string) (*models.Transaction, error) {
	tx, err := s.store.GetTransaction(id)
	if errors.Is(err, internal.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.canSee(tx) {
		return nil, ErrForbidden
	}
	return tx, nil
}

// ListTransactions returns a page of the ledger; merchant users only see their own merchant
func (s *Service) ListTransactions(_ context.Context, actor Actor, filter models.TransactionFilter) (*Page, error) {
	if !actor.Admin {
		if actor.MerchantId == "" {
			return nil, ErrForbidden
		}
		filter.MerchantId = actor.MerchantId
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, invalid(fmt.Sprintf("unknown status %q", filter.Status))
	}
	normalizePage(&filter)
	items, total, err := s.store.GetTransactions(&filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.Transaction{}
	}
	return &Page{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (s *Service) CancelTransaction(ctx context.Context, actor Actor, id string) (*models.Transaction, error) {
	tx, err := s.GetTransaction(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !tx.Status.CanMoveTo(models.StatusCancelled) {
		return nil, invalid(fmt.Sprintf("transaction is %s and cannot be cancelled", tx.Status))
	}
	// unpaid charges and transfers never accepted by a bank are cancelled locally
	if tx.Type == models.TransactionTypeTransfer && tx.ProviderTxId != "" {
		c, err := s.manager.Candidate(tx.MerchantId, tx.ProviderCode)
		if err != nil {
			return nil, err
		}
		_, err = s.manager.Execute(ctx, []*providers.Candidate{c}, providers.MethodCancel, func(ctx context.Context, c *providers.Candidate, token string) error {
			return c.Provider.CancelTransfer(ctx, &providers.Lookup{
				Id:        tx.ProviderTxId,
				Reason:    "cancelled by merchant",
				AuthToken: token,
				ClientId:  c.Credentials.ClientId,
			})
		})
		if err != nil {
			s.auditTransaction(tx, actor.UserId, "transaction.cancel", err)
			return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
		}
	}
	if err = tx.SetStatus(models.StatusCancelled, s.now()); err != nil {
		return nil, invalid(err.Error())
	}
	return tx, s.save(tx, actor, "transaction.cancel", nil)
}

// RefreshStatus asks the provider for the current state of a transaction
func (s *Service) RefreshStatus(ctx context.Context, actor Actor, id string) (*models.Transaction, error) {
	tx, err := s.GetTransaction(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if _, err = s.Sync(ctx, tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	return tx, nil
}

// Sync pulls the provider status of an open transaction into tx and stores any change.
// A transfer with unknown outcome is looked up by its external id. It reports whether tx changed.
func (s *Service) Sync(ctx context.Context, tx *models.Transaction) (bool, error) {
	if tx.Status.IsFinal() {
		return false, nil
	}
	unresolved := tx.ProviderTxId == "" && tx.ErrorCode == models.ErrorOutcomeUnknown && !tx.IsQRCode()
	if tx.ProviderTxId == "" && !unresolved {
		return false, nil
	}
	c, err := s.manager.Candidate(tx.MerchantId, tx.ProviderCode)
	if err != nil {
		return false, err
	}
	lookup := func(token string) *providers.Lookup {
		return &providers.Lookup{Id: tx.ProviderTxId, ExternalId: tx.ExternalId, AuthToken: token, ClientId: c.Credentials.ClientId}
	}
	var status models.TransactionStatus
	var transfer *providers.TransferResponse
	if tx.IsQRCode() {
		_, err = s.manager.Execute(ctx, []*providers.Candidate{c}, providers.MethodGetQRCode, func(ctx context.Context, c *providers.Candidate, token string) error {
			r, err := c.Provider.GetQRCode(ctx, lookup(token))
			if err == nil {
				status = r.Status
			}
			return err
		})
	} else {
		_, err = s.manager.Execute(ctx, []*providers.Candidate{c}, providers.MethodGetTransfer, func(ctx context.Context, c *providers.Candidate, token string) error {
			r, err := c.Provider.GetTransfer(ctx, lookup(token))
			if err == nil {
				transfer = r
				status = r.Status
			}
			return err
		})
	}
	if unresolved && err != nil {
		return s.settleUnresolved(tx, err)
	}
	if err != nil {
		return false, err
	}
	previous := tx.Status
	learned := unresolved && transfer.ProviderTxId != ""
	if learned {
		tx.ProviderTxId = transfer.ProviderTxId
		tx.ErrorCode = ""
		tx.ErrorMessage = ""
	}
	if !s.move(tx, status) && !learned {
		return false, nil
	}
	if transfer != nil {
		if transfer.E2EId != "" {
			tx.E2EId = transfer.E2EId
		}
		if transfer.CompletedAt != nil && tx.Status == models.StatusCompleted {
			tx.CompletedAt = transfer.CompletedAt
		}
		if tx.Status == models.StatusFailed {
			tx.ErrorCode = transfer.ErrorCode
			tx.ErrorMessage = transfer.ErrorMessage
		}
	}
	s.debug(fmt.Sprintf("transaction %s: %s -> %s", tx.Id, previous, tx.Status))
	return true, s.save(tx, Actor{}, "transaction.sync", nil)
}

// Expire cancels an unpaid QR code whose expiry has passed
func (s *Service) Expire(tx *models.Transaction) (bool, error) {
	if !tx.IsQRCode() || tx.Status != models.StatusPending || tx.QRCodeExpiresAt == nil {
		return false, nil
	}
	now := s.now()
	if now.Before(*tx.QRCodeExpiresAt) {
		return false, nil
	}
	if err := tx.SetStatus(models.StatusCancelled, now); err != nil {
		return false, err
	}
	tx.ErrorCode = "EXPIRED"
	tx.ErrorMessage = "qr code expired"
	return true, s.save(tx, Actor{}, "transaction.expire", nil)
}

// ValidatePixKey checks the key format locally and, when a provider supports it, with the bank directory
func (s *Service) ValidatePixKey(ctx context.Context, actor Actor, key string, keyType models.PixKeyType, provider string) (*providers.PixKeyInfo, error) {
	if !keyType.IsValid() {
		return nil, invalid(fmt.Sprintf("unknown pix key type %q", keyType))
	}
	info := &providers.PixKeyInfo{PixKey: key, PixKeyType: keyType}
	if err := models.ValidatePixKey(key, keyType); err != nil {
		return info, nil
	}
	info.Valid = true
	if actor.MerchantId == "" {
		return info, nil
	}
	candidates, err := s.candidates(actor.MerchantId, provider, providers.MethodValidateKey)
	if errors.Is(err, ErrNoProvider) {
		return info, nil
	}
	if err != nil {
		return nil, err
	}
	_, err = s.manager.Execute(ctx, candidates, providers.MethodValidateKey, func(ctx context.Context, c *providers.Candidate, token string) error {
		r, err := c.Provider.ValidatePixKey(ctx, &providers.PixKeyRequest{
			PixKey:     key,
			PixKeyType: keyType,
			AuthToken:  token,
			ClientId:   c.Credentials.ClientId,
		})
		if err == nil {
			info = r
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	return info, nil
}

// candidates lists the merchant providers able to run method
func (s *Service) candidates(merchantId, preferred, method string) ([]*providers.Candidate, error) {
	all, err := s.manager.Candidates(merchantId, preferred)
	if err != nil {
		return nil, err
	}
	var list []*providers.Candidate
	for _, c := range all {
		if utility.Contains(c.Provider.SupportedMethods(), method) {
			list = append(list, c)
		}
	}
	if len(list) == 0 {
		return nil, ErrNoProvider
	}
	return list, nil
}

func (s *Service) assign(tx *models.Transaction, c *providers.Candidate) {
	tx.ProviderCode = c.Code()
	tx.ProviderId = c.Info.Id
}

func (s *Service) insert(tx *models.Transaction, actor Actor) error {
	if tx.ExternalId == "" {
		tx.ExternalId = tx.Id
	} else if _, err := s.store.GetTransactionByExternalId(tx.MerchantId, tx.ExternalId); err == nil {
		return ErrDuplicateExternalID
	} else if !errors.Is(err, internal.ErrNotFound) {
		return err
	}
	if err := s.store.AddTransaction(tx); err != nil {
		if errors.Is(err, internal.ErrDuplicate) {
			return ErrDuplicateExternalID
		}
		return err
	}
	s.auditTransaction(tx, actor.UserId, "transaction.create", nil)
	s.emit(models.EventTransactionCreated, tx)
	return nil
}

// move applies a provider status when the state machine allows it
func (s *Service) move(tx *models.Transaction, status models.TransactionStatus) bool {
	if status == "" || status == tx.Status {
		return false
	}
	if err := tx.SetStatus(status, s.now()); err != nil {
		s.warn(err.Error())
		return false
	}
	return true
}

// unresolved keeps a transfer the bank may have executed open for the reconciler
func (s *Service) unresolved(tx *models.Transaction, actor Actor, cause error) (*models.Transaction, error) {
	tx.ErrorCode = models.ErrorOutcomeUnknown
	tx.ErrorMessage = cause.Error()
	s.warn(fmt.Sprintf("transaction %s via %s: outcome unknown, left open: %v", tx.Id, tx.ProviderCode, cause))
	return tx, s.save(tx, actor, "transaction.transfer", cause)
}

// settleUnresolved fails an unknown outcome transfer the bank reports as absent once the grace period passed
func (s *Service) settleUnresolved(tx *models.Transaction, cause error) (bool, error) {
	var pe *providers.ProviderError
	if !errors.As(cause, &pe) || pe.StatusCode != http.StatusNotFound || s.now().Sub(tx.CreatedAt) < unresolvedGrace {
		return false, cause
	}
	if err := tx.SetStatus(models.StatusFailed, s.now()); err != nil {
		return false, err
	}
	tx.ErrorCode = "NOT_EXECUTED"
	tx.ErrorMessage = "transfer unknown to " + tx.ProviderCode
	return true, s.save(tx, Actor{}, "transaction.sync", nil)
}

func (s *Service) fail(tx *models.Transaction, actor Actor, cause error) (*models.Transaction, error) {
	tx.ErrorCode = "PROVIDER_ERROR"
	var pe *providers.ProviderError
	if errors.As(cause, &pe) {
		tx.ErrorCode = pe.Code
		tx.ErrorMessage = pe.Message
	} else {
		tx.ErrorMessage = cause.Error()
	}
	if err := tx.SetStatus(models.StatusFailed, s.now()); err != nil {
		s.warn(err.Error())
	}
	if err := s.save(tx, actor, "transaction."+string(tx.Type), cause); err != nil {
		return tx, err
	}
	return tx, fmt.Errorf("%w: %s", ErrProviderFailure, tx.ErrorMessage)
}

func (s *Service) save(tx *models.Transaction, actor Actor, action string, cause error) error {
	tx.UpdatedAt = s.now()
	if err := s.store.UpdateTransaction(tx); err != nil {
		s.logError("update transaction "+tx.Id, err)
		return err
	}
	counters.CountTransaction(tx.ProviderCode, string(tx.Type), string(tx.Status), tx.Amount)
	s.auditTransaction(tx, actor.UserId, action, cause)
	s.emit(internal.EventTypeFor(tx.Status), tx)
	return nil
}

func (s *Service) emit(eventType string, tx *models.Transaction) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, listener := range s.listeners {
		snapshot := *tx
		listener.OnTransactionEvent(internal.NewTransactionEvent(eventType, &snapshot))
	}
}

func (s *Service) auditTransaction(tx *models.Transaction, userId, action string, err error) {
	if s.audit != nil {
		s.audit.LogTransaction(tx, userId, action, err)
	}
}

func (s *Service) debug(text string) {
	if s.logger != nil {
		s.logger.Debug(text)
	}
}

func (s *Service) warn(text string) {
	if s.logger != nil {
		s.logger.Warn(text)
	}
}

func (s *Service) logError(text string, err error) {
	if s.logger != nil {
		s.logger.Error(text, err)
	}
}
