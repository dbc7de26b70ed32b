package orders

import (
	"context"
	"net"
	"strings"

	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
)

type mxLookup func(ctx context.Context, domain string) ([]*net.MX, error)

type emailVerifier struct {
	lookup mxLookup
}

// NewEmailVerifier checks the address shape and the domain's MX records.
// The DNS query is a real network call; callers tolerate its latency the
// same way they do gateway calls.
func NewEmailVerifier() EmailVerifier {
	resolver := &net.Resolver{}
	return &emailVerifier{lookup: resolver.LookupMX}
}

func (v *emailVerifier) VerifyDomain(ctx context.Context, email string) error {
	trimmed := strings.TrimSpace(email)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 || at == len(trimmed)-1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "adresse e-mail invalide")
	}

	domain := trimmed[at+1:]
	records, err := v.lookup(ctx, domain)
	if err != nil || len(records) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "le domaine de l'adresse e-mail n'accepte pas de courrier")
	}
	return nil
}
