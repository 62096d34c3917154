package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"pixgate/dashboard"
	"pixgate/internal"
	"pixgate/models"
	"pixgate/payments"
	"pixgate/security"
	"pixgate/utility"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

var (
	ErrUnauthorized   = utility.Err("authentication required")
	ErrBadCredentials = utility.Err("invalid credentials")
	ErrInactive       = utility.Err("account is inactive")
	ErrIPNotAllowed   = utility.Err("client address is not allowed")
)

type contextKey int

const identityKey contextKey = iota

// Identity is the authenticated caller of a request
type Identity struct {
	UserId     string      `json:"user_id,omitempty"`
	MerchantId string      `json:"merchant_id,omitempty"`
	Email      string      `json:"email,omitempty"`
	Role       models.Role `json:"role"`
	ApiKeyId   string      `json:"api_key_id,omitempty"`
}

func (i *Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

func (i *Identity) Actor() payments.Actor {
	return payments.Actor{UserId: i.UserId, MerchantId: i.MerchantId, Admin: i.IsAdmin()}
}

// Scope is the dashboard scope: admins see every merchant
func (i *Identity) Scope() dashboard.Scope {
	if i.IsAdmin() {
		return dashboard.Scope{}
	}
	return dashboard.Scope{MerchantId: i.MerchantId}
}

func (i *Identity) limiterKey() string {
	if i.ApiKeyId != "" {
		return "key:" + i.ApiKeyId
	}
	return "user:" + i.UserId
}

func identityOf(r *http.Request) *Identity {
	identity, _ := r.Context().Value(identityKey).(*Identity)
	return identity
}

func withIdentity(r *http.Request, identity *Identity) *http.Request {
	if info, ok := r.Context().Value(infoKey).(*requestInfo); ok {
		info.identity = identity
	}
	return r.WithContext(context.WithValue(r.Context(), identityKey, identity))
}

func userIdentity(user *models.User) *Identity {
	return &Identity{
		UserId:     user.Id,
		MerchantId: user.MerchantId,
		Email:      user.Email,
		Role:       user.Role,
	}
}

// authenticate accepts an X-API-Key header or a bearer access token
func (s *Server) authenticate(r *http.Request) (*Identity, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return s.apiKeyIdentity(key, s.clientIP(r))
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrUnauthorized
	}
	token, err := security.ExtractTokenFromHeader(header)
	if err != nil {
		return nil, err
	}
	claims, err := s.tokens.ValidateAccess(token)
	if err != nil {
		return nil, err
	}
	return &Identity{
		UserId:     claims.UserId,
		MerchantId: claims.MerchantId,
		Email:      claims.Email,
		Role:       claims.Role,
	}, nil
}

func (s *Server) apiKeyIdentity(plain, ip string) (*Identity, error) {
	if !security.IsApiKey(plain) {
		return nil, security.ErrInvalidToken
	}
	keys, err := s.database.GetApiKeysByPrefix(security.ApiKeyLookupPrefix(plain))
	if err != nil {
		return nil, err
	}
	hash := security.HashToken(plain)
	now := s.now()
	for _, key := range keys {
		if !security.HashEquals(key.Hash, hash) {
			continue
		}
		if !key.Active || key.IsExpired(now) {
			return nil, security.ErrInvalidToken
		}
		merchant, err := s.database.GetMerchant(key.MerchantId)
		if err != nil {
			return nil, security.ErrInvalidToken
		}
		if !merchant.Active {
			return nil, ErrInactive
		}
		if len(merchant.IPWhitelist) > 0 && !utility.Contains(merchant.IPWhitelist, ip) {
			return nil, ErrIPNotAllowed
		}
		if err = s.database.TouchApiKey(key.Id, now); err != nil {
			s.logger.Warn(fmt.Sprintf("api key %s: last use not saved: %s", key.Prefix, err))
		}
		return &Identity{
			MerchantId: key.MerchantId,
			Role:       models.RoleMerchant,
			ApiKeyId:   key.Id,
		}, nil
	}
	return nil, security.ErrInvalidToken
}

// refreshUser resolves a refresh token to its active user; the token must be stored and not revoked
func (s *Server) refreshUser(token string) (*models.User, error) {
	subject, err := s.tokens.ValidateRefresh(token)
	if err != nil {
		return nil, err
	}
	record, err := s.database.GetRefreshToken(security.HashToken(token))
	if err != nil {
		return nil, security.ErrInvalidToken
	}
	if record.Revoked || record.UserId != subject || s.now().After(record.ExpiresAt) {
		return nil, security.ErrInvalidToken
	}
	user, err := s.database.GetUser(subject)
	if err != nil {
		return nil, security.ErrInvalidToken
	}
	if !user.Active {
		return nil, ErrInactive
	}
	return user, nil
}

// sessionIdentity reads the web session cookie, which carries a refresh token
func (s *Server) sessionIdentity(r *http.Request) (*Identity, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.refreshUser(cookie.Value)
	if err != nil {
		return nil, err
	}
	return userIdentity(user), nil
}

// login checks credentials and issues a token pair whose refresh token is persisted
func (s *Server) login(email, password string, r *http.Request) (*models.User, *security.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	ip, agent := s.clientIP(r), r.UserAgent()
	user, err := s.database.GetUserByEmail(email)
	if err != nil {
		if !errors.Is(err, internal.ErrNotFound) {
			return nil, nil, err
		}
		s.logAuthentication("", email, ip, agent, false, "user not found")
		return nil, nil, ErrBadCredentials
	}
	if !user.Active {
		s.logAuthentication(user.Id, email, ip, agent, false, "user inactive")
		return nil, nil, ErrInactive
	}
	if !security.CheckPassword(user.Password, password) {
		s.logAuthentication(user.Id, email, ip, agent, false, "invalid password")
		return nil, nil, ErrBadCredentials
	}
	pair, err := s.issue(user)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	user.LastLogin = &now
	if err = s.database.UpdateUser(user); err != nil {
		s.logger.Warn(fmt.Sprintf("user %s: last login not saved: %s", user.Id, err))
	}
	s.logAuthentication(user.Id, email, ip, agent, true, "")
	s.logger.FeatureEvent("Login", user.Id, fmt.Sprintf("user %s logged in from %s", email, ip))
	return user, pair, nil
}

func (s *Server) issue(user *models.User) (*security.TokenPair, error) {
	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, err
	}
	now := s.now()
	err = s.database.AddRefreshToken(&models.RefreshToken{
		Id:        uuid.NewString(),
		UserId:    user.Id,
		Hash:      security.HashToken(pair.RefreshToken),
		ExpiresAt: now.Add(s.tokens.RefreshTTL()),
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *Server) logAuthentication(userId, email, ip, agent string, success bool, reason string) {
	if s.audit != nil {
		s.audit.LogAuthentication(userId, email, ip, agent, success, reason)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type loginResponse struct {
	*security.TokenPair
	User *models.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	user, pair, err := s.login(req.Email, req.Password, r)
	if err != nil {
		s.authFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &loginResponse{TokenPair: pair, User: user})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.refreshUser(req.RefreshToken)
	if err != nil {
		s.authFailed(w, r, err)
		return
	}
	pair, err := s.issue(user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &loginResponse{TokenPair: pair, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity := identityOf(r)
	if identity.UserId == "" {
		writeJSON(w, http.StatusOK, identity)
		return
	}
	user, err := s.database.GetUser(identity.UserId)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity := identityOf(r)
	if identity.UserId != "" {
		if err := s.database.RevokeRefreshTokens(identity.UserId, s.now()); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) authFailed(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBadCredentials), errors.Is(err, ErrInactive), errors.Is(err, ErrUnauthorized),
		errors.Is(err, security.ErrInvalidToken), errors.Is(err, security.ErrMissingBearer):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrIPNotAllowed):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.fail(w, r, err)
	}
}

// requireAuth wraps a handler with authentication and rate limiting
func (s *Server) requireAuth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		identity, err := s.authenticate(r)
		if err != nil {
			s.authFailed(w, r, err)
			return
		}
		if !s.allow(w, identity.limiterKey()) {
			return
		}
		next(w, withIdentity(r, identity), params)
	}
}

func (s *Server) requireAdmin(next httprouter.Handle) httprouter.Handle {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		if !identityOf(r).IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r, params)
	})
}
