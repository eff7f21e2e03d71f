package token

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Provider returns the current bearer credential, or "" when none is available.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static always returns the same credential.
func Static(token string) Provider {
	return ProviderFunc(func(context.Context) (string, error) {
		return token, nil
	})
}

// Chain asks each provider in turn and returns the first non-empty token.
// Errors are only returned when no provider produced a token.
func Chain(providers ...Provider) Provider {
	return ProviderFunc(func(ctx context.Context) (string, error) {
		var errs []error
		for _, p := range providers {
			tok, err := p.Token(ctx)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if tok != "" {
				return tok, nil
			}
		}
		return "", errors.Join(errs...)
	})
}

// ExpiryGuard hides JWTs that expire within leeway so the caller sees "no
// credential" instead of dialing with a token the server will reject.
// Tokens that are not JWTs pass through untouched.
func ExpiryGuard(p Provider, leeway time.Duration) Provider {
	return ProviderFunc(func(ctx context.Context) (string, error) {
		tok, err := p.Token(ctx)
		if err != nil || tok == "" {
			return tok, err
		}

		expiresAt, ok := ExpiresAt(tok)
		if ok && time.Now().Add(leeway).After(expiresAt) {
			log.Debug().Time("expires_at", expiresAt).Msg("discarding expired access token")
			return "", nil
		}
		return tok, nil
	})
}
