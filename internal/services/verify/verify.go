package verify

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"qe2ee/internal/crypto"
	"qe2ee/internal/domain"
	"qe2ee/internal/logging"
	"qe2ee/internal/protocol/olm"
)

// Fields never covered by a signature.
var excluded = []string{"signatures", "unsigned"}

func log() *logrus.Entry { return logging.For("verify") }

// VerifyIdentitySignature checks the self-signature of a device key bundle.
// A missing key or signature is reported as false.
func VerifyIdentitySignature(dk domain.DeviceKeys, deviceID, userID string) bool {
	keyID := domain.KeyID(domain.Ed25519, deviceID)
	signingKey := dk.Keys[keyID]
	signature := dk.Signatures.Get(userID, keyID)
	if signingKey == "" || signature == "" {
		log().WithFields(logrus.Fields{"user_id": userID, "device_id": deviceID}).
			Debug("device keys carry no self-signature")
		return false
	}
	obj, err := ToObject(dk)
	if err != nil {
		log().WithError(err).Warn("cannot convert device keys for verification")
		return false
	}
	return Ed25519VerifySignature(signingKey, obj, signature)
}

// Ed25519VerifySignature verifies signature over obj with signingKey. obj is
// not modified.
func Ed25519VerifySignature(signingKey string, obj map[string]any, signature string) bool {
	if signature == "" {
		return false
	}
	stripped := make(map[string]any, len(obj))
	for k, v := range obj {
		stripped[k] = v
	}
	for _, k := range excluded {
		delete(stripped, k)
	}
	msg, err := crypto.CanonicalJSON(stripped)
	if err != nil {
		log().WithError(err).Warn("cannot canonicalise signed object")
		return false
	}
	if err := olm.VerifyEd25519(signingKey, msg, signature); err != nil {
		log().WithFields(logging.OperationFields("ed25519_verify", "failed", logrus.Fields{
			"code": olm.CodeOf(err).String(),
		}, logging.SizeFields("message", msg))).Warn("signature verification failed")
		return false
	}
	return true
}

// VerifyJSON is Ed25519VerifySignature for a raw JSON object.
func VerifyJSON(signingKey string, raw []byte, signature string) bool {
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		log().WithError(err).Warn("signed payload is not a JSON object")
		return false
	}
	return Ed25519VerifySignature(signingKey, obj, signature)
}

// ToObject converts v to a generic JSON object, keeping numbers exact.
func ToObject(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("verify: marshal: %w", err)
	}
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("verify: decode: %w", err)
	}
	return obj, nil
}
