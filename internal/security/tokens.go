package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or signed for another purpose.
	ErrInvalidToken = errors.New("invalid token")
)

const (
	purposeSession = "session"
	purposeVerify  = "email-verify"
)

// tokenClaims holds JWT claims shared by session and email-verification tokens.
// Purpose keeps the two token kinds from being interchangeable.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose"`
}

// TokenProvider issues and validates HS256 session and email-verification
// tokens for the local identity authority.
type TokenProvider struct {
	secret     []byte
	issuer     string
	sessionTTL time.Duration
	verifyTTL  time.Duration
}

// NewTokenProvider returns a TokenProvider signing with secret. An empty
// secret gets a random one, suitable only for a single-process dev authority
// (tokens do not survive restarts).
func NewTokenProvider(secret []byte, issuer string, sessionTTL, verifyTTL time.Duration) (*TokenProvider, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	}
	if issuer == "" {
		issuer = "maeul-auth"
	}
	return &TokenProvider{
		secret:     secret,
		issuer:     issuer,
		sessionTTL: sessionTTL,
		verifyTTL:  verifyTTL,
	}, nil
}

// IssueSession issues a session token for the given account.
func (p *TokenProvider) IssueSession(accountID, email string) (string, error) {
	return p.issue(accountID, email, purposeSession, p.sessionTTL)
}

// ValidateSession validates a session token and returns the account id.
func (p *TokenProvider) ValidateSession(token string) (string, error) {
	claims, err := p.parse(token, purposeSession)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// IssueVerification issues an email-verification token embedded in the
// verification link mailed to the account.
func (p *TokenProvider) IssueVerification(accountID, email string) (string, error) {
	return p.issue(accountID, email, purposeVerify, p.verifyTTL)
}

// ValidateVerification validates a verification token and returns the account id.
func (p *TokenProvider) ValidateVerification(token string) (string, error) {
	claims, err := p.parse(token, purposeVerify)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (p *TokenProvider) issue(accountID, email, purpose string, ttl time.Duration) (string, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   accountID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:   email,
		Purpose: purpose,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func (p *TokenProvider) parse(token, purpose string) (*tokenClaims, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	}, jwt.WithIssuer(p.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// generateJTI returns a random hex token id.
func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
