package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// HMACSignatureService implements ports.SignatureService using HMAC-SHA256.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA256 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign computes HMAC-SHA256 of the raw payload using secret.
// Returns lowercase hex-encoded signature.
func (s *HMACSignatureService) Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against HMAC-SHA256(secret, payload) in constant time.
// A "sha256=" prefix and upper-case hex are accepted.
func (s *HMACSignatureService) Verify(secret string, payload []byte, signature string) bool {
	if secret == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), got)
}

// StaticKeyring implements ports.SecretProvider over a fixed key-id to secret map.
type StaticKeyring struct {
	secrets  map[string]string
	activeID string
}

// NewStaticKeyring builds a keyring. activeID selects the secret used when
// a caller asks for the empty key id; with a single secret it is implied.
func NewStaticKeyring(secrets map[string]string, activeID string) *StaticKeyring {
	copied := make(map[string]string, len(secrets))
	for id, secret := range secrets {
		if secret != "" {
			copied[id] = secret
		}
	}
	if activeID == "" && len(copied) == 1 {
		for id := range copied {
			activeID = id
		}
	}
	return &StaticKeyring{secrets: copied, activeID: activeID}
}

// Secret returns the secret for keyID, or the active secret when keyID is empty.
func (k *StaticKeyring) Secret(keyID string) (string, bool) {
	if keyID == "" {
		keyID = k.activeID
	}
	secret, ok := k.secrets[keyID]
	return secret, ok
}

// All returns every secret, active key first, the rest in key-id order.
func (k *StaticKeyring) All() []string {
	ids := make([]string, 0, len(k.secrets))
	for id := range k.secrets {
		if id != k.activeID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]string, 0, len(k.secrets))
	if s, ok := k.secrets[k.activeID]; ok {
		out = append(out, s)
	}
	for _, id := range ids {
		out = append(out, k.secrets[id])
	}
	return out
}
