package token

import (
	"context"
	"net/url"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oauth2-proxy/mockoidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAudience = "radix-release-api"

func Test_ValidToken_PrincipalNamedBySubject(t *testing.T) {
	issuer := startIssuer(t)
	v, err := NewValidator(issuer, testAudience)
	require.NoError(t, err)

	principal, err := v.ValidateToken(context.Background(), signToken(t, issuer, testAudience, "approver1"))
	require.NoError(t, err)
	assert.True(t, principal.IsAuthenticated())
	assert.Equal(t, "sub:approver1", principal.Id())
	assert.Equal(t, "approver1", principal.Name())
}

func Test_TokenForOtherAudience_Rejected(t *testing.T) {
	issuer := startIssuer(t)
	v, err := NewValidator(issuer, testAudience)
	require.NoError(t, err)

	_, err = v.ValidateToken(context.Background(), signToken(t, issuer, "another-api", "approver1"))
	assert.Error(t, err)
}

func Test_ChainedValidator_AcceptsAnyConfiguredIssuer(t *testing.T) {
	issuer1 := startIssuer(t)
	issuer2 := startIssuer(t)
	v1, err := NewValidator(issuer1, testAudience)
	require.NoError(t, err)
	v2, err := NewValidator(issuer2, testAudience)
	require.NoError(t, err)
	v := NewChainedValidator(v1, v2)

	principal, err := v.ValidateToken(context.Background(), signToken(t, issuer2, testAudience, "deployer"))
	require.NoError(t, err)
	assert.Equal(t, "deployer", principal.Name())

	unknownIssuer, err := url.Parse("http://unknown-issuer/")
	require.NoError(t, err)
	_, err = v.ValidateToken(context.Background(), signToken(t, *unknownIssuer, testAudience, "deployer"))
	assert.Error(t, err)

	_, err = v.ValidateToken(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func Test_ChainedValidator_NoValidators(t *testing.T) {
	_, err := NewChainedValidator().ValidateToken(context.Background(), "any")
	assert.ErrorIs(t, err, errNoIssuersFound)
}

func Test_OidcPrincipal_NamePrecedence(t *testing.T) {
	p := &OidcPrincipal{subject: "sub1", identity: identityClaims{ObjectId: "oid1", AppId: "app1"}}
	assert.Equal(t, "oid1", p.Id())
	assert.Equal(t, "app1", p.Name())

	p.identity.Upn = "jane@example.com"
	assert.Equal(t, "jane@example.com", p.Name())
}

func Test_AnonymousPrincipal(t *testing.T) {
	p := NewAnonymousPrincipal()
	assert.False(t, p.IsAuthenticated())
	assert.Equal(t, "anonymous", p.Name())
	assert.Empty(t, p.Token())
}

func startIssuer(t *testing.T) url.URL {
	m, err := mockoidc.Run()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.Shutdown()
	})

	issuer, err := url.Parse(m.Issuer())
	require.NoError(t, err)

	return *issuer
}

func signToken(t *testing.T, issuer url.URL, audience, subject string) string {
	user := mockoidc.DefaultUser()
	key, err := mockoidc.DefaultKeypair()
	require.NoError(t, err)

	claims, err := user.Claims([]string{"openid"}, &mockoidc.IDTokenClaims{
		RegisteredClaims: &jwt.RegisteredClaims{
			Issuer:   issuer.String(),
			Subject:  subject,
			Audience: []string{audience},
		},
	})
	require.NoError(t, err)

	signed, err := key.SignJWT(claims)
	require.NoError(t, err)
	return signed
}
