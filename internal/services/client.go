package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-authgate/wpgate/internal/models"
	"github.com/go-authgate/wpgate/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrClientNotFound        = errors.New("client not found")
	ErrInvalidClientData     = errors.New("invalid client data")
	ErrRedirectURIRequired   = errors.New("at least one redirect URI is required")
	ErrInvalidRedirectURIFmt = errors.New("redirect URI must be an absolute http(s) URI without fragment")
)

// dummySecretHash keeps VerifySecret timing similar for unknown clients.
var dummySecretHash, _ = bcrypt.GenerateFromPassword([]byte("unused-client-secret"), bcrypt.DefaultCost)

// ClientService is the client registry: registration, lookup and credential checks.
type ClientService struct {
	store *store.Store
	log   *zap.Logger
}

func NewClientService(s *store.Store, log *zap.Logger) *ClientService {
	return &ClientService{store: s, log: log}
}

type RegisterClientRequest struct {
	ClientID     string // generated when empty
	ClientSecret string // generated when empty for confidential clients
	Name         string
	RedirectURIs []string
	Public       bool
}

type ClientResponse struct {
	*models.Client
	ClientSecretPlain string // Only populated on registration
}

// Register creates or re-registers a client. The secret is stored only as a bcrypt hash.
func (s *ClientService) Register(ctx context.Context, req RegisterClientRequest) (*ClientResponse, error) {
	if len(req.RedirectURIs) == 0 {
		return nil, ErrRedirectURIRequired
	}
	for _, uri := range req.RedirectURIs {
		if !isAbsoluteRedirectURI(uri) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRedirectURIFmt, uri)
		}
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = uuid.New().String()
	}
	if strings.ContainsAny(clientID, " \t\r\n") {
		return nil, fmt.Errorf("%w: client_id must not contain whitespace", ErrInvalidClientData)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = clientID
	}

	client := &models.Client{
		ClientID:     clientID,
		Name:         name,
		RedirectURIs: strings.Join(req.RedirectURIs, " "),
	}

	secret := req.ClientSecret
	if !req.Public {
		if secret == "" {
			secret = uuid.New().String()
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		client.ClientSecretHash = string(hash)
	} else {
		secret = ""
	}

	if err := s.store.UpsertClient(client); err != nil {
		return nil, fmt.Errorf("failed to save client: %w", err)
	}

	s.log.Info("registered OAuth2 client",
		zap.String("client_id", clientID),
		zap.Bool("public", req.Public),
		zap.Int("redirect_uris", len(req.RedirectURIs)),
	)

	return &ClientResponse{Client: client, ClientSecretPlain: secret}, nil
}

// Lookup returns the registered client or ErrClientNotFound.
func (s *ClientService) Lookup(ctx context.Context, clientID string) (*models.Client, error) {
	if clientID == "" {
		return nil, ErrClientNotFound
	}
	client, err := s.store.GetClient(clientID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return client, nil
}

// VerifySecret compares the candidate with the stored bcrypt hash.
// Unknown and public clients never verify.
func (s *ClientService) VerifySecret(ctx context.Context, clientID, candidate string) bool {
	client, err := s.Lookup(ctx, clientID)
	if err != nil || client.IsPublic() {
		_ = bcrypt.CompareHashAndPassword(dummySecretHash, []byte(candidate))
		return false
	}
	return verifyClientSecret(client.ClientSecretHash, candidate)
}

// ValidateRedirectURI requires an exact string match with a registered URI.
func (s *ClientService) ValidateRedirectURI(client *models.Client, uri string) bool {
	return client != nil && client.HasRedirectURI(uri)
}

func (s *ClientService) ListClients() ([]models.Client, error) {
	return s.store.ListClients()
}

func (s *ClientService) DeleteClient(clientID string) error {
	return s.store.DeleteClient(clientID)
}

// verifyClientSecret performs bcrypt comparison of the stored hashed client secret.
func verifyClientSecret(hashedSecret, plainSecret string) bool {
	if len(hashedSecret) == 0 || len(plainSecret) == 0 {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(plainSecret))
	return err == nil
}

func isAbsoluteRedirectURI(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != "" && u.Fragment == "" && !strings.ContainsAny(raw, " \t\r\n")
}
