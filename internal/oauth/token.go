package oauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer signs self-contained bearer tokens carrying a full claim
// set. There is no refresh path; an expired token means a new login.
type tokenIssuer struct {
	key    []byte
	org    string
	expiry time.Duration
	now    func() time.Time
}

func newTokenIssuer(key []byte, org string, expiry time.Duration, now func() time.Time) *tokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &tokenIssuer{key: key, org: org, expiry: expiry, now: now}
}

// Issue signs claims into a compact bearer token. Expiry is the
// configured window regardless of role.
func (i *tokenIssuer) Issue(claims Claims) (string, error) {
	now := i.now()

	payload := jwt.MapClaims{
		"sub":             claims.Username,
		"username":        claims.Username,
		"isOrgMember":     claims.IsOrgMember,
		"isOrgOwner":      claims.IsOrgOwner,
		"teams":           claims.Teams,
		"orgRoles":        claims.OrgRoles,
		"allowedClusters": claims.AllowedClusters,
		"org":             i.org,
		"maxNodes":        claims.MaxNodes,
		"clusterTtlHours": claims.ClusterTTLHours,
		"iat":             now.Unix(),
		"exp":             now.Add(i.expiry).Unix(),
		"iss":             Issuer,
	}
	for key, roles := range claims.TeamRoles {
		payload[key] = roles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign bearer token: %w", err)
	}
	return signed, nil
}
