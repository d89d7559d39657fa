package pgstore

import (
	"context"
	"strings"

	"github.com/BearBump/CourierHub/internal/integrations/carrier"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/pkg/errors"
)

// Opener расшифровывает значения, сохранённые в provider_credentials.
type Opener interface {
	Open(sealed string) (string, error)
}

// CredentialStore отдаёт расшифрованные учётные данные клиента у перевозчика.
type CredentialStore struct {
	s      *Storage
	opener Opener
}

func (s *Storage) Credentials(opener Opener) *CredentialStore {
	return &CredentialStore{s: s, opener: opener}
}

// PutSealedCredential stores an already sealed value (see courierctl secrets seal).
func (s *Storage) PutSealedCredential(ctx context.Context, clientID int64, provider, envKey, sealed string) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO provider_credentials (client_id, provider, env_key, sealed_value)
VALUES ($1, $2, $3, $4)
ON CONFLICT (client_id, provider, env_key) DO UPDATE SET sealed_value = EXCLUDED.sealed_value, updated_at = now()
`, clientID, strings.ToLower(provider), envKey, sealed)
	return errors.Wrap(err, "upsert credential")
}

func (c *CredentialStore) GetProviderCredentials(ctx context.Context, clientID int64, provider string) (carrier.Credentials, error) {
	rows, err := c.s.db.Query(ctx, `
SELECT env_key, sealed_value
FROM provider_credentials
WHERE client_id = $1 AND provider = $2
`, clientID, strings.ToLower(provider))
	if err != nil {
		return nil, errors.Wrap(err, "select credentials")
	}
	defer rows.Close()

	out := carrier.Credentials{}
	for rows.Next() {
		var key, sealed string
		if err := rows.Scan(&key, &sealed); err != nil {
			return nil, errors.Wrap(err, "scan credential")
		}
		if c.opener == nil {
			return nil, errors.Wrap(models.ErrConfiguration, "credentials key is not configured")
		}
		plain, err := c.opener.Open(sealed)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", key)
		}
		out[key] = plain
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(models.ErrNotFound, "credentials for client %d provider %s", clientID, provider)
	}
	return out, nil
}
