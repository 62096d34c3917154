// Package cache stores provider OAuth tokens between requests.
package cache

import (
	"context"
	"fmt"
	"time"
)

// expirySkew is subtracted from token lifetimes so a cached token is never used at its edge
const expirySkew = 30 * time.Second

type TokenStore interface {
	Get(ctx context.Context, provider, account string) (string, bool, error)
	Put(ctx context.Context, provider, account, token string, expiresAt time.Time) error
	Delete(ctx context.Context, provider, account string) error
}

func tokenKey(provider, account string) string {
	return fmt.Sprintf("pix:token:%s:%s", provider, account)
}

func ttl(expiresAt, now time.Time) time.Duration {
	return expiresAt.Sub(now) - expirySkew
}
