package repository

import (
	"context"
	"errors"

	"github.com/NickKasten/posture/internal/crypto"
	"github.com/NickKasten/posture/internal/domain"
)

// ErrCredentialNotFound signals that a user has not connected the platform.
var ErrCredentialNotFound = errors.New("repository: credential not found")

// CredentialRepository persists encrypted social credentials. One live row
// per (user, platform); Upsert is the only writer and runs as a single
// atomic statement.
type CredentialRepository interface {
	Upsert(ctx context.Context, cred domain.SocialCredential) (domain.SocialCredential, error)
	GetByUserAndPlatform(ctx context.Context, userID string, platform domain.Platform) (domain.SocialCredential, error)
	ListByUser(ctx context.Context, userID string) ([]domain.SocialCredential, error)
	Delete(ctx context.Context, userID string, platform domain.Platform) error
	// RotateAll re-encrypts every stored token under a new cipher. Explicit
	// out-of-band operation, never part of the request path.
	RotateAll(ctx context.Context, old, new *crypto.Cipher) (int, error)
}
