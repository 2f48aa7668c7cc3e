package media

import (
	"fmt"
	"live-hub/domain"
	"live-hub/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// VideoGrant names the provider room the bearer may connect to.
type VideoGrant struct {
	Room string `json:"room"`
}

type Grants struct {
	Identity string     `json:"identity"`
	Video    VideoGrant `json:"video"`
}

// GrantClaims follow the access token layout of hosted video providers:
// the API key as issuer, the account as subject and the grants as a claim.
type GrantClaims struct {
	Grants Grants `json:"grants"`
	jwt.RegisteredClaims
}

type Config struct {
	AccountID string
	APIKey    string
	APISecret string
	TTL       time.Duration
}

// TokenIssuer signs short-lived media grants for live-session rooms.
// Audio and video never flow through the hub; the client hands this token
// to the media provider.
type TokenIssuer struct {
	cfg Config
}

func NewTokenIssuer(cfg Config) TokenIssuer {
	return TokenIssuer{cfg: cfg}
}

// Issue returns a signed grant and its expiry. Only live-session rooms have media.
func (i TokenIssuer) Issue(identity domain.Identity, key domain.RoomKey) (string, time.Time, error) {
	if key.Kind != domain.KindLiveSession {
		return "", time.Time{}, fmt.Errorf("%w: %s has no media session", errors.ErrValidation, key)
	}
	now := time.Now()
	expiresAt := now.Add(i.cfg.TTL)
	claims := &GrantClaims{
		Grants: Grants{
			Identity: string(identity.UserID),
			Video:    VideoGrant{Room: key.String()},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        i.cfg.APIKey + "-" + uuid.NewString(),
			Issuer:    i.cfg.APIKey,
			Subject:   i.cfg.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["cty"] = "twilio-fpa;v=1"
	signed, err := token.SignedString([]byte(i.cfg.APISecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
