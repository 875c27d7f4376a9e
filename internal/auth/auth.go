// Package auth talks to Google's OAuth token endpoint and builds the
// XOAUTH2 credential used for IMAP authentication.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/mixelka/gmailarchiver/internal/tokenstore"
)

const (
	authURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	tokenURL    = "https://oauth2.googleapis.com/token"
	redirectURI = "urn:ietf:wg:oauth:2.0:oob"

	// Scope grants full mailbox access, which deletion requires.
	Scope = "https://mail.google.com/"
)

// Error is an authoritative non-2xx response from the token endpoint. It is
// terminal: the grant is invalid or expired, so the call must not be retried.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Client performs the two token endpoint exchanges.
type Client struct {
	// Config holds the OAuth client registration. Tests may point
	// Config.Endpoint at a local server.
	Config *oauth2.Config

	// Timeout bounds each HTTP call.
	Timeout time.Duration
}

// NewClient returns a Client configured for Google's endpoints.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
				// Credentials go in the POST body. Leaving the style
				// unset makes oauth2 probe with a second request on
				// failure, which we never want against this endpoint.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		Timeout: 15 * time.Second,
	}
}

// ConsentURL returns the URL the operator visits to obtain a verification code.
func (c *Client) ConsentURL() string {
	return c.Config.AuthCodeURL("", oauth2.AccessTypeOffline)
}

// ExchangeCode trades a single-use authorization code for a token record.
func (c *Client) ExchangeCode(ctx context.Context, code string) (tokenstore.Record, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	tok, err := c.Config.Exchange(ctx, code)
	if err != nil {
		return tokenstore.Record{}, asAuthError(err)
	}
	return recordFromToken(tok, time.Now()), nil
}

// Refresh trades a refresh token for a fresh access token. The returned
// record may lack a refresh token; the caller re-attaches the prior one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (tokenstore.Record, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	tok, err := c.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return tokenstore.Record{}, asAuthError(err)
	}
	return recordFromToken(tok, time.Now()), nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.Timeout)
}

// asAuthError maps an authoritative token endpoint response to *Error.
// Transport failures pass through unchanged.
func asAuthError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		e := &Error{Body: string(rerr.Body)}
		if rerr.Response != nil {
			e.StatusCode = rerr.Response.StatusCode
		}
		return e
	}
	return err
}

func recordFromToken(tok *oauth2.Token, now time.Time) tokenstore.Record {
	rec := tokenstore.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		rec.ExpiresIn = int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			rec.ExpiresIn = n
		}
	}
	if rec.ExpiresIn > 0 {
		rec.ExpirationTime = now.Add(time.Duration(rec.ExpiresIn) * time.Second).UTC()
	} else if !tok.Expiry.IsZero() {
		rec.ExpirationTime = tok.Expiry.UTC()
	}
	return rec
}
