package provider

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/brightclass/video-service/pkg/models"
)

// TokenOptions configures a playback token.
type TokenOptions struct {
	// ExpiresIn is the token lifetime. Zero selects the default for the type.
	ExpiresIn time.Duration
	// Type is the token audience: video, thumbnail, or storyboard.
	Type string
	// Params are extra claims merged into the token (e.g. thumbnail time).
	Params map[string]string
}

// TokenSigner issues RS256 playback tokens for signed playback policies.
// The key material is immutable after construction.
type TokenSigner struct {
	keyID      string
	privateKey *rsa.PrivateKey
}

// NewTokenSigner decodes a base64-encoded PEM RSA private key.
func NewTokenSigner(keyID, privateKeyBase64 string) (*TokenSigner, error) {
	if keyID == "" {
		return nil, fmt.Errorf("%w: signing key id required", models.ErrInvalidInput)
	}

	pemBytes, err := base64.StdEncoding.DecodeString(privateKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signing key: %w", err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	return &TokenSigner{keyID: keyID, privateKey: key}, nil
}

// KeyID returns the signing key id embedded in issued tokens.
func (s *TokenSigner) KeyID() string {
	return s.keyID
}

// GeneratePlaybackToken issues an RS256 JWT the provider's delivery edge
// accepts for the given playback id.
func (s *TokenSigner) GeneratePlaybackToken(playbackID string, opts TokenOptions) (string, error) {
	if playbackID == "" {
		return "", fmt.Errorf("%w: playback id required", models.ErrInvalidInput)
	}

	audience := opts.Type
	if audience == "" {
		audience = models.TokenAudienceVideo
	}

	ttl := opts.ExpiresIn
	if ttl <= 0 {
		ttl = defaultTTL(audience)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": playbackID,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"kid": s.keyID,
	}
	for k, v := range opts.Params {
		if _, reserved := claims[k]; !reserved {
			claims[k] = v
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	return token.SignedString(s.privateKey)
}

func defaultTTL(audience string) time.Duration {
	switch audience {
	case models.TokenAudienceThumbnail:
		return models.DefaultThumbnailTokenTTL * time.Second
	case models.TokenAudienceStoryboard:
		return models.DefaultStoryboardTokenTTL * time.Second
	default:
		return models.DefaultVideoTokenTTL * time.Second
	}
}
