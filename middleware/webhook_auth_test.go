package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func runGatewayMiddleware(t *testing.T, secret, body, signature string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway/invoice-paid", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(GatewaySignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := VerifyGatewaySignature(secret)(func(c echo.Context) error {
		// Handlers must still be able to read the body after verification.
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(c.Request().Body); err != nil {
			return err
		}
		return c.String(http.StatusOK, buf.String())
	})
	return rec, handler(c)
}

func TestVerifyGatewaySignature(t *testing.T) {
	const secret = "whsec_test"
	const body = `{"invoiceId":"inv_1"}`

	t.Run("valid signature passes and body survives", func(t *testing.T) {
		rec, err := runGatewayMiddleware(t, secret, body, signBody(secret, body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, body, rec.Body.String())
	})

	t.Run("wrong signature rejected", func(t *testing.T) {
		_, err := runGatewayMiddleware(t, secret, body, signBody("other", body))
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})

	t.Run("missing signature rejected", func(t *testing.T) {
		_, err := runGatewayMiddleware(t, secret, body, "")
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})

	t.Run("empty secret disables verification", func(t *testing.T) {
		rec, err := runGatewayMiddleware(t, "", body, "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSharedSecretAuth(t *testing.T) {
	newContext := func(secretHeader string) (echo.Context, *httptest.ResponseRecorder) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/cron/maturation", nil)
		if secretHeader != "" {
			req.Header.Set("X-Cron-Secret", secretHeader)
		}
		rec := httptest.NewRecorder()
		return e.NewContext(req, rec), rec
	}

	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	t.Run("matching secret passes", func(t *testing.T) {
		c, rec := newContext("s3cret")
		require.NoError(t, SharedSecretAuth("X-Cron-Secret", "s3cret")(handler)(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		c, _ := newContext("nope")
		err := SharedSecretAuth("X-Cron-Secret", "s3cret")(handler)(c)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})

	t.Run("unconfigured secret fails closed", func(t *testing.T) {
		c, _ := newContext("")
		err := SharedSecretAuth("X-Cron-Secret", "")(handler)(c)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})
}
