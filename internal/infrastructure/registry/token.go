package registry

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jhoicas/Facturacion-sync/internal/domain"
)

// TokenProvider es la fuente opaca de credenciales bearer del motor.
// CurrentToken devuelve un token vigente (refrescando de forma transparente
// si el cacheado expiró); Refresh descarta el cache y fuerza uno nuevo.
type TokenProvider interface {
	CurrentToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// ClientCredentialsProvider implementa TokenProvider con el flujo
// client-credentials OAuth2 del registro, apoyado en oauth2.TokenSource
// para el cacheo y el refresh automático por expiración.
type ClientCredentialsProvider struct {
	conf *clientcredentials.Config

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewClientCredentialsProvider construye el proveedor. tokenURL es el endpoint
// de login del registro; scopes puede ir vacío si el registro no los usa.
func NewClientCredentialsProvider(tokenURL, clientID, clientSecret string, scopes []string) *ClientCredentialsProvider {
	return &ClientCredentialsProvider{
		conf: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		},
	}
}

// CurrentToken devuelve un access token vigente. Los fallos se reportan como
// error de autenticación para que el controlador los escale en vez de
// reintentarlos con backoff.
func (p *ClientCredentialsProvider) CurrentToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.source == nil {
		p.source = p.conf.TokenSource(ctx)
	}
	src := p.source
	p.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: obtener token del registro: %v", domain.ErrUnauthorized, err)
	}
	return tok.AccessToken, nil
}

// Refresh descarta el token cacheado y obtiene uno nuevo de inmediato.
func (p *ClientCredentialsProvider) Refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	p.source = p.conf.TokenSource(ctx)
	src := p.source
	p.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: refrescar token del registro: %v", domain.ErrUnauthorized, err)
	}
	return tok.AccessToken, nil
}
