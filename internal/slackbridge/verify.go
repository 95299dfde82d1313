package slackbridge

import (
	"bytes"
	"io"
	"net/http"

	"github.com/slack-go/slack"

	"github.com/Iron-Ham/tinytree/internal/errors"
)

// MaxRequestBytes caps the body read from a Slack request.
const MaxRequestBytes = 1 << 20

// ErrBadSignature is returned when a request fails signing-secret
// verification.
var ErrBadSignature = errors.New("slack request signature invalid")

// VerifyRequest checks the X-Slack-Signature of r against secret. The body
// is read, verified and put back so handlers can parse it again.
func VerifyRequest(r *http.Request, secret string) error {
	if secret == "" {
		return errors.NewConfigError("slack.signing_secret", "signing secret is empty")
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBytes))
	if err != nil {
		return errors.Wrap(err, "read slack request")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	sv, err := slack.NewSecretsVerifier(r.Header, secret)
	if err != nil {
		return errors.Wrapf(ErrBadSignature, "%v", err)
	}
	if _, err := sv.Write(body); err != nil {
		return errors.Wrapf(ErrBadSignature, "%v", err)
	}
	if err := sv.Ensure(); err != nil {
		return errors.Wrapf(ErrBadSignature, "%v", err)
	}
	return nil
}

// Middleware rejects requests that fail VerifyRequest with 401.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := VerifyRequest(r, secret); err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
