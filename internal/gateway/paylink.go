package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrPaylinkInvalid = errors.New("payment link token invalid")

type paylinkClaims struct {
	PaymentID  string `json:"pid"`
	SessionKey string `json:"sk"`
	jwt.RegisteredClaims
}

// Paylinker mints short-lived signed payment links. The token embeds the
// payment id and the owning session key, and expires together with the
// payment request it points at.
type Paylinker struct {
	secret  []byte
	baseURL string
}

func NewPaylinker(secret, baseURL string) *Paylinker {
	return &Paylinker{secret: []byte(secret), baseURL: baseURL}
}

// Enabled reports whether payment links can be minted.
func (p *Paylinker) Enabled() bool {
	return len(p.secret) > 0 && p.baseURL != ""
}

// Link builds the full payment URL for a request.
func (p *Paylinker) Link(paymentID, sessionKey string, expiresAt time.Time) (string, error) {
	token, err := p.Sign(paymentID, sessionKey, expiresAt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/pay?token=%s", p.baseURL, url.QueryEscape(token)), nil
}

// Sign mints the bare token.
func (p *Paylinker) Sign(paymentID, sessionKey string, expiresAt time.Time) (string, error) {
	claims := paylinkClaims{
		PaymentID:  paymentID,
		SessionKey: sessionKey,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign payment link: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns the payment id and session key it was
// minted for. Expired or tampered tokens return ErrPaylinkInvalid.
func (p *Paylinker) Verify(tokenString string) (paymentID, sessionKey string, err error) {
	claims := &paylinkClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", "", ErrPaylinkInvalid
	}
	if claims.PaymentID == "" || claims.SessionKey == "" {
		return "", "", ErrPaylinkInvalid
	}
	return claims.PaymentID, claims.SessionKey, nil
}
