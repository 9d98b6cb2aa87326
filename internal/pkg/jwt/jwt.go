package jwt

import (
	"crypto/rsa"
	"fmt"
	"net/http"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/status"
)

type JSONWebToken struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// NewJSONWebToken parses the PEM encoded RSA key pair. The private key may be
// empty for components that only verify tokens.
func NewJSONWebToken(privateKeyPEM, publicKeyPEM []byte) (*JSONWebToken, error) {
	j := &JSONWebToken{}

	if len(privateKeyPEM) > 0 {
		privateKey, err := gojwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("unable to parse jwt private key: %w", err)
		}
		j.privateKey = privateKey
	}

	publicKey, err := gojwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("unable to parse jwt public key: %w", err)
	}
	j.publicKey = publicKey

	return j, nil
}

func (j *JSONWebToken) Sign(claims gojwt.Claims) (string, error) {
	if j.privateKey == nil {
		return "", fmt.Errorf("jwt signing requires a private key")
	}

	token := gojwt.NewWithClaims(gojwt.SigningMethodRS256, claims)

	return token.SignedString(j.privateKey)
}

func (j *JSONWebToken) Parse(tokenString string, claims gojwt.Claims) error {
	token, err := gojwt.ParseWithClaims(tokenString, claims, func(t *gojwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.publicKey, nil
	})
	if err != nil || !token.Valid {
		return errors.New(http.StatusUnauthorized, status.UNAUTHORIZED, "invalid token")
	}

	return nil
}
