package keys

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"github.com/ironclaw/core/internal/kerr"
)

// nep413Tag is (1<<31) + 413, per spec.md §4.10.
const nep413Tag uint32 = (1 << 31) + 413

// Intent is the signed NEP-413 payload returned to a caller authorizing
// an action on a verifying contract.
type Intent struct {
	Standard  string `json:"standard"`
	Payload   string `json:"payload"` // base64 of the 32-byte hash
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"` // base64
}

// nep413Hash computes SHA-256 of tag(u32 LE) ⧺ canonical JSON of
// message.
func nep413Hash(message any) ([32]byte, error) {
	canonical, err := canonicalJSON(message)
	if err != nil {
		return [32]byte{}, kerr.Wrap(kerr.Parsing, err)
	}
	var tagBytes [4]byte
	binary.LittleEndian.PutUint32(tagBytes[:], nep413Tag)
	buf := append(append([]byte{}, tagBytes[:]...), canonical...)
	return SHA256Hash(buf), nil
}

// canonicalJSON marshals v with sorted map keys via Go's stdlib, which
// already sorts object keys in encoding/json's map-to-JSON path.
func canonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// SignIntent builds and signs a NEP-413 intent for message, using the
// ed25519 key stored under "near_key:<label>" for userID.
func SignIntent(ctx context.Context, store SecretsStore, userID, label string, message any) (Intent, error) {
	hash, err := nep413Hash(message)
	if err != nil {
		return Intent{}, err
	}

	sig, err := SignHash(ctx, store, userID, label, hash)
	if err != nil {
		return Intent{}, err
	}

	decrypted, err := store.GetDecrypted(ctx, userID, "near_key:"+label)
	if err != nil {
		return Intent{}, kerr.New(kerr.SecretNotFound, "failed to decrypt key '%s' for public key derivation: %v", label, err)
	}
	pub, err := PublicKeyFromSecret(decrypted.Expose())
	if err != nil {
		return Intent{}, err
	}

	return Intent{
		Standard:  "nep413",
		Payload:   base64.StdEncoding.EncodeToString(hash[:]),
		PublicKey: pub.ToNearFormat(),
		Signature: base64.StdEncoding.EncodeToString(sig[:]),
	}, nil
}
