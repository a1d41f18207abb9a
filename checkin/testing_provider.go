package checkin

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local Check-in stand-in that serves the fixed /oidc/*
// endpoints the authenticator derives from its host. It makes writing tests
// much easier: it signs id_tokens with a throwaway ECDSA key, serves the
// matching key set, and counts token endpoint calls per grant type so tests
// can assert refresh idempotence.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks *jose.JSONWebKeySet

	mu                sync.Mutex
	clientID          string
	clientSecret      string
	expectedAuthCode  string
	expectedAuthNonce string
	replySubject      string
	replyUserinfo     map[string]interface{}
	replyRefreshToken string
	replyExpiresIn    int
	omitIDToken       bool
	authCodeGrants    int
	refreshGrants     int
	userinfoCalls     int
	lastRefreshForm   url.Values

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// StartTestProvider creates and starts a disposable TestProvider on a random
// port. The server is stopped via t.Cleanup.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()

	p := &TestProvider{
		replySubject: "eeaa1b80-b819-4e1f-b4e7-0cbc54ff4da7@egi.eu",
		replyUserinfo: map[string]interface{}{
			"preferred_username": "jdoe",
			"name":               "Jane Doe",
		},
		replyRefreshToken: "test-refresh-token",
		replyExpiresIn:    3600,
		t:                 t,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()
	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}); err != nil {
		t.Fatal(err)
	}
	p.caCert = buf.String()

	return p
}

// Addr returns the current base URL for the test provider's running
// webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// Host returns the host (including port) for the test provider, suitable for
// Config's WithHost option.
func (p *TestProvider) Host() string {
	return strings.TrimPrefix(p.httpServer.URL, "https://")
}

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SetClientCreds configures the relying party credentials the token endpoint
// requires.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the only authorization code the token
// endpoint accepts.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce embedded in issued id_tokens.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetReplySubject configures the subject of issued id_tokens.
func (p *TestProvider) SetReplySubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetReplyUserinfo configures the claims returned from the userinfo
// endpoint.
func (p *TestProvider) SetReplyUserinfo(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = claims
}

// SetReplyRefreshToken configures the refresh token issued by the token
// endpoint; it's also the only refresh token accepted for the refresh_token
// grant. An empty value omits refresh tokens entirely.
func (p *TestProvider) SetReplyRefreshToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyRefreshToken = token
}

// SetReplyExpiresIn configures the expires_in (seconds) in token responses.
func (p *TestProvider) SetReplyExpiresIn(seconds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyExpiresIn = seconds
}

// OmitIDTokens forces the token endpoint to not return id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// AuthCodeGrants returns the number of authorization_code grant calls the
// token endpoint served.
func (p *TestProvider) AuthCodeGrants() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authCodeGrants
}

// RefreshGrants returns the number of refresh_token grant calls the token
// endpoint served.
func (p *TestProvider) RefreshGrants() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshGrants
}

// LastRefreshForm returns the form values of the last refresh_token grant
// call served.
func (p *TestProvider) LastRefreshForm() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRefreshForm
}

// UserinfoCalls returns the number of userinfo calls served.
func (p *TestProvider) UserinfoCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userinfoCalls
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// clientCredsOk accepts credentials from either basic auth or form values,
// since the oauth2 package probes both styles.
func (p *TestProvider) clientCredsOk(req *http.Request) bool {
	if p.clientID == "" {
		return true
	}
	if id, secret, ok := req.BasicAuth(); ok {
		return id == url.QueryEscape(p.clientID) && secret == url.QueryEscape(p.clientSecret)
	}
	return req.FormValue("client_id") == p.clientID && req.FormValue("client_secret") == p.clientSecret
}

func (p *TestProvider) issueIDToken(nonce string) string {
	claims := jwt.Claims{
		Subject:   p.replySubject,
		Issuer:    p.Addr() + "/oidc",
		NotBefore: jwt.NewNumericDate(time.Now().Add(-5 * time.Second)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Expiry:    jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		Audience:  jwt.Audience{p.clientID},
	}
	privateClaims := map[string]interface{}{}
	if nonce != "" {
		privateClaims["nonce"] = nonce
	}
	return TestSignJWT(p.t, p.ecdsaPrivateKey, claims, privateClaims)
}

type testTokenReply struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/oidc/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !p.clientCredsOk(req) {
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "unexpected client credentials")
			return
		}

		switch req.FormValue("grant_type") {
		case "authorization_code":
			if req.FormValue("code") != p.expectedAuthCode {
				_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
				return
			}
			p.authCodeGrants++
			reply := testTokenReply{
				AccessToken:  fmt.Sprintf("access-token-%d", p.authCodeGrants),
				TokenType:    "Bearer",
				RefreshToken: p.replyRefreshToken,
				ExpiresIn:    p.replyExpiresIn,
				Scope:        "openid profile",
			}
			if !p.omitIDToken {
				reply.IDToken = p.issueIDToken(p.expectedAuthNonce)
			}
			_ = p.writeJSON(w, &reply)

		case "refresh_token":
			p.lastRefreshForm = req.PostForm
			if p.replyRefreshToken == "" || req.FormValue("refresh_token") != p.replyRefreshToken {
				_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected refresh token")
				return
			}
			p.refreshGrants++
			reply := testTokenReply{
				AccessToken:  fmt.Sprintf("refreshed-access-token-%d", p.refreshGrants),
				TokenType:    "Bearer",
				RefreshToken: p.replyRefreshToken,
				ExpiresIn:    p.replyExpiresIn,
			}
			if !p.omitIDToken {
				reply.IDToken = p.issueIDToken("")
			}
			_ = p.writeJSON(w, &reply)

		default:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
		}

	case "/oidc/userinfo":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.userinfoCalls++
		_ = p.writeJSON(w, p.replyUserinfo)

	case "/oidc/jwk":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
