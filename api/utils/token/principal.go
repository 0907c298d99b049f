package token

import (
	"context"
	"fmt"
)

type identityClaims struct {
	ObjectId       string `json:"oid,omitempty"`
	Upn            string `json:"upn,omitempty"`
	AppDisplayName string `json:"app_displayname,omitempty"`
	AppId          string `json:"appid,omitempty"`
}

func (c *identityClaims) Validate(_ context.Context) error {
	return nil
}

// OidcPrincipal an identity proven by a validated token
type OidcPrincipal struct {
	token    string
	subject  string
	identity identityClaims
}

func (p *OidcPrincipal) Token() string {
	return p.token
}

func (p *OidcPrincipal) IsAuthenticated() bool {
	return true
}

func (p *OidcPrincipal) Id() string {
	if p.identity.ObjectId != "" {
		return p.identity.ObjectId
	}
	return fmt.Sprintf("sub:%s", p.subject)
}

// Name The name used when attributing actions (triggers, approvals) to the principal
func (p *OidcPrincipal) Name() string {
	switch {
	case p.identity.Upn != "":
		return p.identity.Upn
	case p.identity.AppDisplayName != "":
		return p.identity.AppDisplayName
	case p.identity.AppId != "":
		return p.identity.AppId
	case p.identity.ObjectId != "":
		return p.identity.ObjectId
	}
	return p.subject
}

type AnonPrincipal struct{}

func (p *AnonPrincipal) Token() string         { return "" }
func (p *AnonPrincipal) Id() string            { return "anonymous" }
func (p *AnonPrincipal) Name() string          { return "anonymous" }
func (p *AnonPrincipal) IsAuthenticated() bool { return false }

func NewAnonymousPrincipal() *AnonPrincipal {
	return &AnonPrincipal{}
}
