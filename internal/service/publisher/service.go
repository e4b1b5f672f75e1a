package publisher

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NickKasten/posture/internal/apperr"
	"github.com/NickKasten/posture/internal/config"
	"github.com/NickKasten/posture/internal/crypto"
	"github.com/NickKasten/posture/internal/domain"
	"github.com/NickKasten/posture/internal/publish"
	"github.com/NickKasten/posture/internal/repository"
)

// ClientFactory builds a platform client around one decrypted token. It is
// injectable so tests can substitute fakes for the HTTP clients.
type ClientFactory func(platform domain.Platform, provider config.ProviderConfig, accessToken string) publish.Client

// Service runs the publish path: admission is handled upstream by the rate
// limiter middleware; here the stored credential is loaded, decrypted, and
// handed to the platform client.
type Service struct {
	cfg     config.Config
	creds   repository.CredentialRepository
	cipher  *crypto.Cipher
	clients ClientFactory
	logger  *zap.Logger
	now     func() time.Time
}

// NewService wires the publisher service with the default client factory.
func NewService(cfg config.Config, creds repository.CredentialRepository, cipher *crypto.Cipher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.L()
	}
	s := &Service{
		cfg:    cfg,
		creds:  creds,
		cipher: cipher,
		logger: logger,
		now:    time.Now,
	}
	s.clients = func(platform domain.Platform, provider config.ProviderConfig, accessToken string) publish.Client {
		switch platform {
		case domain.PlatformLinkedIn:
			return publish.NewLinkedInClient(nil, provider, accessToken, publish.DefaultRetryPolicy, logger)
		default:
			return publish.NewTwitterClient(nil, provider, accessToken, publish.DefaultRetryPolicy, logger)
		}
	}
	return s
}

// WithClientFactory overrides client construction.
func (s *Service) WithClientFactory(factory ClientFactory) *Service {
	s.clients = factory
	return s
}

// Publish validates the request, decrypts the stored credential, and
// dispatches to the platform client. Token material never leaves this call.
func (s *Service) Publish(ctx context.Context, userID string, req domain.PublishRequest) (*domain.PublishResult, error) {
	platform, ok := domain.ParsePlatform(req.Platform)
	if !ok {
		return nil, apperr.New(apperr.Validation, "unsupported platform "+req.Platform)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.New(apperr.Validation, "content cannot be empty")
	}

	cred, err := s.creds.GetByUserAndPlatform(ctx, userID, platform)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, apperr.New(apperr.NotFound, platform.String()+" is not connected")
		}
		return nil, apperr.Wrap(apperr.Database, "load credential", err)
	}
	if cred.Expired(s.now()) {
		return nil, apperr.New(apperr.Token, platform.String()+" access token has expired; reconnect the platform")
	}

	accessToken, err := s.cipher.Decrypt(cred.EncryptedAccessToken)
	if err != nil {
		// A ciphertext that no longer decrypts is corrupted or sealed under
		// a rotated-away key: a data-integrity failure, not a user error.
		return nil, apperr.Wrap(apperr.Database, "decrypt credential", err)
	}

	providerCfg, _ := s.cfg.Provider(platform.String())
	client := s.clients(platform, providerCfg, accessToken)

	result, err := client.PublishPost(ctx, withHashtags(req.Content, req.Hashtags))
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalAPI, "publish failed", err)
	}

	s.logger.Info("publish completed",
		zap.String("user_id", userID),
		zap.String("platform", platform.String()),
		zap.Bool("success", result.Success),
		zap.Int("segments", len(result.PostIDs)),
	)
	return result, nil
}

// Connections lists the user's linked platforms without token material.
func (s *Service) Connections(ctx context.Context, userID string) ([]domain.Connection, error) {
	creds, err := s.creds.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "list connections", err)
	}
	connections := make([]domain.Connection, 0, len(creds))
	for _, cred := range creds {
		connections = append(connections, domain.Connection{
			Platform:  cred.Platform,
			Scopes:    cred.Scopes,
			ExpiresAt: cred.TokenExpiresAt,
			UpdatedAt: cred.UpdatedAt,
		})
	}
	return connections, nil
}

// Disconnect removes the stored credential for the platform.
func (s *Service) Disconnect(ctx context.Context, userID, platformName string) error {
	platform, ok := domain.ParsePlatform(platformName)
	if !ok {
		return apperr.New(apperr.Validation, "unsupported platform "+platformName)
	}
	if err := s.creds.Delete(ctx, userID, platform); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return apperr.New(apperr.NotFound, platform.String()+" is not connected")
		}
		return apperr.Wrap(apperr.Database, "delete credential", err)
	}
	return nil
}

// withHashtags appends normalized hashtags that the content does not already
// carry.
func withHashtags(content string, hashtags []string) string {
	var extras []string
	for _, tag := range hashtags {
		tag = strings.TrimSpace(strings.TrimPrefix(tag, "#"))
		if tag == "" {
			continue
		}
		tag = "#" + tag
		if !strings.Contains(content, tag) {
			extras = append(extras, tag)
		}
	}
	if len(extras) == 0 {
		return content
	}
	return strings.TrimSpace(content) + "\n\n" + strings.Join(extras, " ")
}
