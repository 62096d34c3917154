package providers

import (
	"context"
	"fmt"
	"pixgate/cache"
	"pixgate/internal"
	"pixgate/metrics/counters"
	"pixgate/models"
	"pixgate/utility"
	"sort"
	"sync"
	"time"
)

var ErrNoProvider = utility.Err("no provider available for merchant")

const (
	breakerMaxFailures = 5
	breakerCoolDown    = 30 * time.Second
	breakerResetAfter  = 2
	tokenLifetime      = time.Hour
)

// Directory is the provider configuration the manager reads on every selection
type Directory interface {
	GetProviders() ([]*models.Provider, error)
	GetMerchantProviders(merchantId string) ([]*models.MerchantProvider, error)
}

type Decrypter interface {
	Decrypt(encoded string) (string, error)
}

// Candidate is a provider adapter bound to one merchant account
type Candidate struct {
	Provider    PixProvider
	Info        *models.Provider
	Account     *models.MerchantProvider
	Credentials Credentials
}

func (c *Candidate) Code() string {
	return c.Info.Code
}

// Operation runs against one candidate with a valid access token
type Operation func(ctx context.Context, c *Candidate, token string) error

type Manager struct {
	registry  *Registry
	directory Directory
	secrets   Decrypter
	tokens    cache.TokenStore
	log       internal.LogHandler
	recorder  Recorder
	mutex     sync.Mutex
	breakers  map[string]*Breaker
}

func NewManager(registry *Registry, directory Directory, secrets Decrypter, tokens cache.TokenStore) *Manager {
	return &Manager{
		registry:  registry,
		directory: directory,
		secrets:   secrets,
		tokens:    tokens,
		breakers:  make(map[string]*Breaker),
	}
}

func (m *Manager) SetLogger(log internal.LogHandler) {
	m.log = log
}

// Recorder keeps an audit trail of calls made to providers
type Recorder interface {
	LogProviderOperation(merchantId, provider, operation string, err error, duration time.Duration)
}

func (m *Manager) SetRecorder(recorder Recorder) {
	m.recorder = recorder
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

func (m *Manager) breaker(code string) *Breaker {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	b, ok := m.breakers[code]
	if !ok {
		b = NewBreaker(breakerMaxFailures, breakerCoolDown, breakerResetAfter)
		m.breakers[code] = b
	}
	return b
}

// BreakerState reports the breaker of a provider code, closed when none was created yet
func (m *Manager) BreakerState(code string) BreakerState {
	m.mutex.Lock()
	b, ok := m.breakers[code]
	m.mutex.Unlock()
	if !ok {
		return StateClosed
	}
	return b.State()
}

// Candidates lists the merchant accounts usable right now, healthy providers first, then by priority.
// A preferred code restricts the list to that provider.
func (m *Manager) Candidates(merchantId, preferred string) ([]*Candidate, error) {
	providers, err := m.directory.GetProviders()
	if err != nil {
		return nil, fmt.Errorf("read providers: %w", err)
	}
	byId := make(map[string]*models.Provider, len(providers))
	for _, p := range providers {
		byId[p.Id] = p
	}
	accounts, err := m.directory.GetMerchantProviders(merchantId)
	if err != nil {
		return nil, fmt.Errorf("read merchant providers: %w", err)
	}

	var list []*Candidate
	for _, account := range accounts {
		info, ok := byId[account.ProviderId]
		if !ok || !info.Active || !account.Active {
			continue
		}
		if preferred != "" && info.Code != preferred {
			continue
		}
		adapter, ok := m.registry.Get(info.Code)
		if !ok {
			continue
		}
		credentials, err := m.credentials(account)
		if err != nil {
			m.warn(fmt.Sprintf("merchant %s provider %s: %v", merchantId, info.Code, err))
			continue
		}
		list = append(list, &Candidate{
			Provider:    adapter,
			Info:        info,
			Account:     account,
			Credentials: credentials,
		})
	}
	if len(list) == 0 {
		return nil, ErrNoProvider
	}
	sort.SliceStable(list, func(i, j int) bool {
		ui := list[i].Info.HealthStatus == models.HealthUnhealthy
		uj := list[j].Info.HealthStatus == models.HealthUnhealthy
		if ui != uj {
			return !ui
		}
		if list[i].Info.Priority != list[j].Info.Priority {
			return list[i].Info.Priority < list[j].Info.Priority
		}
		return list[i].Info.Code < list[j].Info.Code
	})
	return list, nil
}

// Candidate returns the merchant account at one specific provider
func (m *Manager) Candidate(merchantId, code string) (*Candidate, error) {
	list, err := m.Candidates(merchantId, code)
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

func (m *Manager) credentials(account *models.MerchantProvider) (Credentials, error) {
	clientId, err := m.secrets.Decrypt(account.ClientId)
	if err != nil {
		return Credentials{}, fmt.Errorf("decrypt client id: %w", err)
	}
	clientSecret, err := m.secrets.Decrypt(account.ClientSecret)
	if err != nil {
		return Credentials{}, fmt.Errorf("decrypt client secret: %w", err)
	}
	return Credentials{
		AccountId:     account.Id,
		ClientId:      clientId,
		ClientSecret:  clientSecret,
		AccountAgency: account.AccountAgency,
		AccountNumber: account.AccountNumber,
		AccountType:   account.AccountType,
		PixKey:        account.PixKey,
		PixKeyType:    account.PixKeyType,
	}, nil
}

// Token returns a cached access token or authenticates again
func (m *Manager) Token(ctx context.Context, c *Candidate) (string, error) {
	token, ok, err := m.tokens.Get(ctx, c.Code(), c.Account.Id)
	if err != nil {
		m.warn(fmt.Sprintf("token cache read %s: %v", c.Code(), err))
	}
	if ok {
		return token, nil
	}
	start := time.Now()
	auth, err := c.Provider.Authenticate(ctx, c.Credentials)
	counters.ObserveProviderCall(c.Code(), "authenticate", err, time.Since(start))
	if err != nil {
		// a token request moves no money, so another provider may still be tried
		pe := Wrap(CodeAuthFailed, "authentication failed", err).(*ProviderError)
		pe.Uncertain = false
		return "", pe
	}
	expiresAt := auth.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(tokenLifetime)
	}
	if err = m.tokens.Put(ctx, c.Code(), c.Account.Id, auth.AccessToken, expiresAt); err != nil {
		m.warn(fmt.Sprintf("token cache write %s: %v", c.Code(), err))
	}
	return auth.AccessToken, nil
}

func (m *Manager) call(ctx context.Context, c *Candidate, operation string, op Operation) error {
	token, err := m.Token(ctx, c)
	if err != nil {
		return err
	}
	start := time.Now()
	err = op(ctx, c, token)
	if IsUnauthorized(err) {
		_ = m.tokens.Delete(ctx, c.Code(), c.Account.Id)
		if token, err = m.Token(ctx, c); err != nil {
			return err
		}
		err = op(ctx, c, token)
	}
	elapsed := time.Since(start)
	counters.ObserveProviderCall(c.Code(), operation, err, elapsed)
	if m.recorder != nil {
		m.recorder.LogProviderOperation(c.Account.MerchantId, c.Code(), operation, err, elapsed)
	}
	return err
}

// Execute runs op on the first candidate that accepts it. Retryable failures fall
// through to the next candidate and count against the provider breaker; a candidate
// that does not support the operation is skipped without blame.
// A failure after the bank may have acted (IsUncertain) stops the fallback, and a
// cancelled ctx stops it without blaming the provider.
// The returned candidate is the last one tried, nil when every breaker was open.
func (m *Manager) Execute(ctx context.Context, candidates []*Candidate, operation string, op Operation) (*Candidate, error) {
	var last *Candidate
	var lastErr error
	for _, c := range candidates {
		breaker := m.breaker(c.Code())
		if !breaker.CanExecute() {
			counters.ObserveBreaker(c.Code(), true)
			if lastErr == nil {
				lastErr = &ProviderError{Code: CodeUnavailable, Message: c.Code() + " circuit open", Retryable: true}
			}
			continue
		}
		last = c
		err := m.call(ctx, c, operation, op)
		if err == nil {
			breaker.OnSuccess()
			counters.ObserveBreaker(c.Code(), false)
			return c, nil
		}
		if IsNotSupported(err) && ctx.Err() == nil {
			breaker.Release()
			lastErr = err
			continue
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			breaker.Release()
			return c, err
		}
		breaker.OnFailure()
		counters.ObserveBreaker(c.Code(), breaker.State() == StateOpen)
		if IsUncertain(err) {
			m.warn(fmt.Sprintf("%s via %s has unknown outcome: %v", operation, c.Code(), err))
			return c, err
		}
		m.warn(fmt.Sprintf("%s via %s failed, trying next provider: %v", operation, c.Code(), err))
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrNoProvider
	}
	return last, lastErr
}

func (m *Manager) warn(text string) {
	if m.log != nil {
		m.log.Warn(text)
	}
}
