package api

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry extracts the exp claim from a server-issued access token
// without verifying its signature (the signing key stays on the server; the
// client only needs the lifetime).
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("unparseable access token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("access token has no expiry claim")
	}
	return exp.Time, nil
}

// SetAccessToken installs a bearer token (e.g. scanned from a field access
// QR code) on all subsequent requests. An already-expired token is refused.
func (c *Client) SetAccessToken(ctx context.Context, token string) error {
	exp, err := TokenExpiry(token)
	if err != nil {
		return err
	}
	if time.Now().After(exp) {
		return fmt.Errorf("access token expired at %s", exp.Format(time.RFC3339))
	}
	if until := time.Until(exp); until < time.Hour {
		c.log.Warn(ctx, "access token expires soon", "expires_in", until.Round(time.Minute))
	}

	c.accessToken = token
	return nil
}
