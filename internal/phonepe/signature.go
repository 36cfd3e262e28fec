package phonepe

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"portfolio-payments/internal/models"
)

// SignatureVerifier checks PhonePe X-VERIFY headers. PhonePe's docs and its
// SDKs have disagreed over the years about exactly which bytes get hashed,
// so verification tries a fixed list of known constructions in order and
// accepts the first match.
type SignatureVerifier struct {
	saltKey      string
	saltIndex    string
	callbackPath string
	logger       *logrus.Entry
}

// NewSignatureVerifier creates a verifier for the given salt credentials.
// callbackPath is the path component registered with PhonePe for callbacks.
func NewSignatureVerifier(saltKey, saltIndex, callbackPath string) *SignatureVerifier {
	return &SignatureVerifier{
		saltKey:      saltKey,
		saltIndex:    saltIndex,
		callbackPath: callbackPath,
		logger:       logrus.WithField("component", "phonepe-signature"),
	}
}

type signatureRecipe struct {
	name   string
	digest func(v *SignatureVerifier, rawBody []byte, index string) string
}

// Recipes are ordered most to least commonly observed in the wild.
var signatureRecipes = []signatureRecipe{
	{
		name: "sha256(base64Body+path+salt)",
		digest: func(v *SignatureVerifier, rawBody []byte, _ string) string {
			encoded := base64.StdEncoding.EncodeToString(rawBody)
			return sha256Hex(encoded + v.callbackPath + v.saltKey)
		},
	},
	{
		name: "sha256(rawBody+salt)",
		digest: func(v *SignatureVerifier, rawBody []byte, _ string) string {
			return sha256Hex(string(rawBody) + v.saltKey)
		},
	},
	{
		name: "sha256(base64Body+salt)",
		digest: func(v *SignatureVerifier, rawBody []byte, _ string) string {
			encoded := base64.StdEncoding.EncodeToString(rawBody)
			return sha256Hex(encoded + v.saltKey)
		},
	},
	{
		name: "hmac-sha256(salt,rawBody)",
		digest: func(v *SignatureVerifier, rawBody []byte, _ string) string {
			mac := hmac.New(sha256.New, []byte(v.saltKey))
			mac.Write(rawBody)
			return hex.EncodeToString(mac.Sum(nil))
		},
	},
	{
		name: "sha256(rawBody+salt+index)",
		digest: func(v *SignatureVerifier, rawBody []byte, index string) string {
			return sha256Hex(string(rawBody) + v.saltKey + index)
		},
	},
}

// Verify checks xVerify against rawBody. On success it returns the name of
// the recipe that matched; otherwise models.ErrSignatureInvalid.
func (v *SignatureVerifier) Verify(rawBody []byte, xVerify string) (string, error) {
	if v.saltKey == "" {
		return "", fmt.Errorf("%w: PHONEPE_SALT_KEY is not set", models.ErrConfiguration)
	}
	if xVerify == "" {
		return "", fmt.Errorf("%w: X-VERIFY header missing", models.ErrSignatureInvalid)
	}

	// X-VERIFY is "{digest}###{saltIndex}". When present, the sender's index
	// takes precedence over the configured one; tolerate a missing suffix.
	received := xVerify
	index := v.saltIndex
	if idx := strings.Index(xVerify, "###"); idx >= 0 {
		received = xVerify[:idx]
		if suffix := strings.TrimSpace(xVerify[idx+3:]); suffix != "" {
			index = suffix
		}
	}
	received = strings.ToLower(strings.TrimSpace(received))

	for _, recipe := range signatureRecipes {
		computed := recipe.digest(v, rawBody, index)
		if subtle.ConstantTimeCompare([]byte(computed), []byte(received)) == 1 {
			v.logger.WithField("recipe", recipe.name).Debug("X-VERIFY matched")
			return recipe.name, nil
		}
	}
	return "", fmt.Errorf("%w: X-VERIFY matched no known construction", models.ErrSignatureInvalid)
}

// Sign produces the X-VERIFY value for an outbound request to path carrying
// the base64-encoded payload.
func (v *SignatureVerifier) Sign(base64Payload, path string) string {
	return sha256Hex(base64Payload+path+v.saltKey) + "###" + v.saltIndex
}

func sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
