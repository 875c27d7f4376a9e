package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mixelka/gmailarchiver/internal/tokenstore"
)

// Flow decides between the consent exchange and a refresh for one account,
// and persists the token store after every mutation.
type Flow struct {
	Client    *Client
	Store     tokenstore.Store
	StorePath string

	// Prompt shows the consent URL to the operator and returns the
	// verification code they entered.
	Prompt func(consentURL string) (string, error)

	// Clock defaults to time.Now.
	Clock func() time.Time

	Log *slog.Logger
}

// Ensure returns a usable token record for account. A record missing its
// refresh token or expiry runs the consent flow; an expired record (or
// forceRefresh) runs a refresh that keeps the stored refresh token when the
// endpoint omits one.
func (f *Flow) Ensure(ctx context.Context, account string, forceRefresh bool) (tokenstore.Record, error) {
	rec, ok := f.Store[account]
	switch {
	case !ok || !rec.Complete():
		f.logger().Debug("no stored credentials, starting consent flow", "account", account)
		if f.Prompt == nil {
			return tokenstore.Record{}, errors.New("no verification code prompt configured")
		}
		code, err := f.Prompt(f.Client.ConsentURL())
		if err != nil {
			return tokenstore.Record{}, err
		}
		fresh, err := f.Client.ExchangeCode(ctx, code)
		if err != nil {
			return tokenstore.Record{}, err
		}
		if fresh.RefreshToken == "" {
			return tokenstore.Record{}, errors.New("token endpoint returned no refresh_token")
		}
		return f.commit(account, fresh)

	case rec.Expired(f.now()) || forceRefresh:
		f.logger().Debug("refreshing token", "account", account)
		fresh, err := f.Client.Refresh(ctx, rec.RefreshToken)
		if err != nil {
			return tokenstore.Record{}, err
		}
		if fresh.RefreshToken == "" {
			fresh.RefreshToken = rec.RefreshToken
		}
		return f.commit(account, fresh)
	}
	return rec, nil
}

func (f *Flow) commit(account string, rec tokenstore.Record) (tokenstore.Record, error) {
	f.Store[account] = rec
	if err := f.Store.Save(f.StorePath); err != nil {
		return tokenstore.Record{}, err
	}
	return rec, nil
}

func (f *Flow) now() time.Time {
	if f.Clock != nil {
		return f.Clock()
	}
	return time.Now()
}

func (f *Flow) logger() *slog.Logger {
	if f.Log != nil {
		return f.Log
	}
	return slog.Default()
}
