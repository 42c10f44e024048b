package telephony

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/client"

	"voice-scheduler/pkg/logger"
)

const headerTwilioSignature = "X-Twilio-Signature"

// SignatureValidator checks X-Twilio-Signature headers for one auth token.
type SignatureValidator struct {
	v       client.RequestValidator
	enabled bool
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{v: client.NewRequestValidator(authToken), enabled: authToken != ""}
}

// Valid reports whether signature matches a request to fullURL with the given POST parameters.
// fullURL may carry the default port or not; both forms Twilio signs with are accepted.
func (s *SignatureValidator) Valid(fullURL string, params url.Values, signature string) bool {
	if !s.enabled || signature == "" {
		return false
	}
	return s.v.Validate(fullURL, flattenParams(params), signature)
}

// Twilio posts each webhook parameter once.
func flattenParams(params url.Values) map[string]string {
	out := make(map[string]string, len(params))
	for k, vs := range params {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// RequireTwilioSignature rejects webhooks whose signature does not verify.
// publicBaseURL returns the externally visible base the provider was given; the signed URL is
// that base plus the request URI.
func RequireTwilioSignature(authToken string, publicBaseURL func() string) gin.HandlerFunc {
	sv := NewSignatureValidator(authToken)
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		fullURL := strings.TrimRight(publicBaseURL(), "/") + c.Request.URL.RequestURI()

		var params url.Values
		if c.Request.Method == http.MethodPost {
			params = c.Request.PostForm
		}
		if !sv.Valid(fullURL, params, c.GetHeader(headerTwilioSignature)) {
			log.Warn("twilio signature rejected", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}
