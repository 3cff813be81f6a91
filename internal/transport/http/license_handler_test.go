package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvcli/internal/license"
	"pvcli/internal/security"
)

func newTestHandler(t *testing.T, cache *license.ResultCache) (*LicenseHandler, *license.Codec) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keys := security.NewKeyring(&security.StaticKeySource{})
	keys.SetPrivate(key)
	codec := license.NewCodec(keys)

	handler := NewLicenseHandler(codec, cache, slog.Default())
	return handler, codec
}

func issueTestLicense(t *testing.T, codec *license.Codec, expires time.Time) string {
	t.Helper()
	record := license.NewRecord(map[string]any{
		license.AttrType:      "trial",
		license.AttrExpiresAt: expires,
	}, codec.Schema())
	text, err := codec.Export(context.Background(), record, "")
	require.NoError(t, err)
	return text
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestVerifyValidLicense(t *testing.T) {
	handler, codec := newTestHandler(t, nil)
	router := handler.Routes()

	text := issueTestLicense(t, codec, time.Now().AddDate(1, 0, 0))
	rec := postJSON(t, router, "/verify", map[string]string{"license": text})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, "valid", resp.Outcome)
	assert.Equal(t, "trial", resp.Attributes["type"])
	require.NotNil(t, resp.Renewal)
	assert.Equal(t, "active", resp.Renewal.Status)
}

func TestVerifyExpiredLicense(t *testing.T) {
	handler, codec := newTestHandler(t, nil)
	router := handler.Routes()

	text := issueTestLicense(t, codec, time.Now().AddDate(0, 0, -1))
	rec := postJSON(t, router, "/verify", map[string]string{"license": text})

	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			ErrorCode string `json:"error_code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "LICENSE_EXPIRED", resp.Error.ErrorCode)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	handler, _ := newTestHandler(t, nil)
	router := handler.Routes()

	testCases := []struct {
		name     string
		license  string
		wantCode int
		wantErr  string
	}{
		{
			name:     "unframed text",
			license:  "definitely not a license",
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "FRAMING_ERROR",
		},
		{
			name:     "framed but undecryptable",
			license:  "-----BEGIN PULLVIEW LICENSE-----\nAAAA\n-----END PULLVIEW LICENSE-----\n",
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "DECRYPTION_FAILED",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, router, "/verify", map[string]string{"license": tc.license})
			require.Equal(t, tc.wantCode, rec.Code, rec.Body.String())

			var resp struct {
				Error struct {
					ErrorCode string `json:"error_code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantErr, resp.Error.ErrorCode)
		})
	}
}

func TestVerifyRequiresLicenseField(t *testing.T) {
	handler, _ := newTestHandler(t, nil)
	router := handler.Routes()

	rec := postJSON(t, router, "/verify", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyUsesCache(t *testing.T) {
	cache := license.NewResultCache(time.Minute, 16, nil)
	defer cache.Stop()

	handler, codec := newTestHandler(t, cache)
	router := handler.Routes()
	text := issueTestLicense(t, codec, time.Now().AddDate(1, 0, 0))

	first := postJSON(t, router, "/verify", map[string]string{"license": text})
	require.Equal(t, http.StatusOK, first.Code)
	var firstResp VerifyResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	assert.False(t, firstResp.Cached)

	second := postJSON(t, router, "/verify", map[string]string{"license": text})
	require.Equal(t, http.StatusOK, second.Code)
	var secondResp VerifyResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	assert.True(t, secondResp.Cached)
}

func TestIssueRoundTrip(t *testing.T) {
	handler, _ := newTestHandler(t, nil)
	router := handler.Routes()

	rec := postJSON(t, router, "/issue", map[string]string{
		"type":       "trial",
		"expires_at": "2030-06-15",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp IssueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AuditID)
	require.NotEmpty(t, resp.License)

	// The issued text verifies on the same keypair.
	verify := postJSON(t, router, "/verify", map[string]string{"license": resp.License})
	assert.Equal(t, http.StatusOK, verify.Code, verify.Body.String())
}

func TestIssueRejectsBadRequests(t *testing.T) {
	handler, _ := newTestHandler(t, nil)
	router := handler.Routes()

	testCases := []struct {
		name string
		body map[string]string
	}{
		{name: "missing type", body: map[string]string{"expires_at": "2030-06-15"}},
		{name: "missing expiration", body: map[string]string{"type": "trial"}},
		{name: "malformed date", body: map[string]string{"type": "trial", "expires_at": "June 2030"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, router, "/issue", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestIssueRejectsUnsupportedType(t *testing.T) {
	handler, _ := newTestHandler(t, nil)
	router := handler.Routes()

	rec := postJSON(t, router, "/issue", map[string]string{
		"type":       "enterprise",
		"expires_at": "2030-06-15",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	var resp struct {
		Error struct {
			ErrorCode string `json:"error_code"`
			Details   any    `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.ErrorCode)
}

func TestCacheStats(t *testing.T) {
	cache := license.NewResultCache(time.Minute, 16, nil)
	defer cache.Stop()

	handler, _ := newTestHandler(t, cache)
	router := handler.Routes()

	req := httptest.NewRequest(http.MethodGet, "/cache/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Contains(t, stats, "entries")
}
