package server

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"pixgate/audit"
	"pixgate/metrics/counters"
	"pixgate/utility"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/time/rate"
)

const (
	visitorIdle   = 3 * time.Minute
	sweepInterval = time.Minute
)

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

// rateLimiter keeps one token bucket per caller identifier
type rateLimiter struct {
	mutex    sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	swept    time.Time
	now      func() time.Time
}

func newRateLimiter(rps, burst int) *rateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = rps
	}
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// reserve takes a token for the key; when none is available it returns the wait time
func (l *rateLimiter) reserve(key string) (bool, time.Duration) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	now := l.now()
	if now.Sub(l.swept) > sweepInterval {
		for k, v := range l.visitors {
			if now.Sub(v.seen) > visitorIdle {
				delete(l.visitors, k)
			}
		}
		l.swept = now
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.seen = now
	reservation := v.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Second
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (s *Server) allow(w http.ResponseWriter, key string) bool {
	if s.limiter == nil {
		return true
	}
	ok, wait := s.limiter.reserve(key)
	if ok {
		return true
	}
	retryAfter := int(math.Ceil(wait.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	counters.CountRateLimited()
	w.Header().Set("Retry-After", fmt.Sprint(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, &errorBody{
		Error:      "rate limit exceeded",
		Code:       http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	})
	return false
}

// limitByAddress rate limits anonymous endpoints by client address
func (s *Server) limitByAddress(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		if !s.allow(w, "ip:"+s.clientIP(r)) {
			return
		}
		next(w, r, params)
	}
}

type requestInfo struct {
	identity *Identity
}

const infoKey contextKey = iota + 1

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.written {
		rec.status = code
		rec.written = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.written = true
	return rec.ResponseWriter.Write(b)
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, utility.Err("response does not support hijacking")
	}
	return hijacker.Hijack()
}

// observe records request metrics by route pattern and audits authenticated calls
func (s *Server) observe(route string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		start := time.Now()
		info := &requestInfo{}
		r = r.WithContext(context.WithValue(r.Context(), infoKey, info))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r, params)

		elapsed := time.Since(start)
		counters.ObserveRequest(r.Method, route, rec.status, elapsed)
		if info.identity == nil || s.audit == nil || !s.conf.Audit.Enabled {
			return
		}
		s.audit.LogAPIAccess(audit.ApiAccess{
			MerchantId: info.identity.MerchantId,
			UserId:     info.identity.UserId,
			Method:     r.Method,
			Path:       r.URL.Path,
			IP:         s.clientIP(r),
			UserAgent:  r.UserAgent(),
			Status:     rec.status,
			Duration:   elapsed,
		})
	}
}

func (s *Server) route(router *httprouter.Router, method, path string, handle httprouter.Handle) {
	router.Handle(method, path, s.observe(path, handle))
}

// chain wraps the router with the middleware applied to every request
func (s *Server) chain(next http.Handler) http.Handler {
	return s.recoverer(s.securityHeaders(s.cors(next)))
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error(fmt.Sprintf("panic serving %s %s", r.Method, r.URL.Path),
					utility.Errf("%v\n%s", rec, debug.Stack()))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		h.Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:")
		if s.conf.Listen.TLS {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed accepts the origin serving the request and the configured origins;
// with none configured only same-origin requests pass
func (s *Server) originAllowed(r *http.Request, origin string) bool {
	if target, err := url.Parse(origin); err == nil && target.Host != "" && strings.EqualFold(target.Host, r.Host) {
		return true
	}
	return utility.Contains(s.conf.Cors.AllowedOrigins, origin) || utility.Contains(s.conf.Cors.AllowedOrigins, "*")
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Add("Vary", "Origin")
		if !s.originAllowed(r, origin) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", strings.Join([]string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
			}, ","))
			h.Set("Access-Control-Allow-Headers", "Origin,Content-Type,Accept,Authorization,X-API-Key")
			h.Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
