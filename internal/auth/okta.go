package auth

import (
	"context"

	jwtverifier "github.com/okta/okta-jwt-verifier-golang"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
)

// OktaResolver verifies access tokens issued by an Okta authorization server
// and maps their subject to a local user.
type OktaResolver struct {
	verifier *jwtverifier.JwtVerifier
	users    UserLookup
}

func NewOktaResolver(domainName, clientID string, users UserLookup) *OktaResolver {
	toValidate := map[string]string{
		"aud": "api://default",
	}
	if clientID != "" {
		toValidate["cid"] = clientID
	}

	setup := jwtverifier.JwtVerifier{
		Issuer:           "https://" + domainName + "/oauth2/default",
		ClaimsToValidate: toValidate,
	}
	return &OktaResolver{verifier: setup.New(), users: users}
}

func (r *OktaResolver) Resolve(ctx context.Context, token string) (*domain.User, error) {
	const op = "auth.OktaResolver.Resolve"

	jwt, err := r.verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, apperr.E(apperr.Unauthenticated, op, err)
	}
	sub, _ := jwt.Claims["sub"].(string)
	return lookup(ctx, r.users, op, sub)
}

var _ Resolver = (*OktaResolver)(nil)
