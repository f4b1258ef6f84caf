package advisor

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

// EncryptSecret seals plaintext under masterKey, returning a ProviderKey
// ready for storage. The plaintext is never retained after this call.
func EncryptSecret(id, provider, plaintext string, masterKey [32]byte) (*types.ProviderKey, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("advisor: generating nonce: %w", err)
	}

	sealed := secretbox.Seal(nil, []byte(plaintext), &nonce, &masterKey)
	return &types.ProviderKey{
		ID:              id,
		Provider:        provider,
		EncryptedSecret: sealed,
		Nonce:           nonce,
	}, nil
}

// decryptSecret opens a ProviderKey's encrypted secret under masterKey.
// The returned plaintext must not be retained beyond the call site.
func decryptSecret(masterKey [32]byte, key *types.ProviderKey) (string, error) {
	plaintext, ok := secretbox.Open(nil, key.EncryptedSecret, &key.Nonce, &masterKey)
	if !ok {
		return "", fmt.Errorf("advisor: failed to decrypt key %s", key.ID)
	}
	return string(plaintext), nil
}
