package onedata

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// TestService is a local stand-in for the onezone and onepanel REST APIs.
// It records the order of calls and the bodies it received so tests can
// assert the reuse and creation laws of the token broker and the mapper.
type TestService struct {
	httpServer *httptest.Server

	mu sync.Mutex

	// existingToken, when set, is returned from named token lookups;
	// when empty the lookup replies 404.
	existingToken  string
	existingUserID string

	// createdToken is the token value returned from creation calls.
	createdToken string

	// userID is returned from the user-resolution endpoint.
	userID string

	// mappedUsers holds the user ids with an existing credentials mapping.
	mappedUsers map[string]bool

	// failStatus, when non-zero, is returned from every call.
	failStatus int

	calls               []string
	lastAuthToken       string
	lastMappingBody     []byte
	lastTokenCreateBody []byte

	t *testing.T
}

// StartTestService creates and starts a disposable TestService. The server
// is stopped via t.Cleanup.
func StartTestService(t *testing.T) *TestService {
	t.Helper()
	s := &TestService{
		createdToken: "created-onedata-token",
		userID:       "onedata-user-1",
		mappedUsers:  map[string]bool{},
		t:            t,
	}
	s.httpServer = httptest.NewServer(s)
	t.Cleanup(s.httpServer.Close)
	return s
}

// URL returns the base URL for the test service's running webserver,
// suitable for both the onezone URL and the onepanel URL overrides.
func (s *TestService) URL() string { return s.httpServer.URL }

// SetExistingToken makes named token lookups succeed with the given token
// value and owning user id.
func (s *TestService) SetExistingToken(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existingToken = token
	s.existingUserID = userID
}

// SetCreatedToken configures the token value returned from creation calls.
func (s *TestService) SetCreatedToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createdToken = token
}

// SetUserID configures the user id returned from the user-resolution
// endpoint.
func (s *TestService) SetUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// SetExistingMapping marks the user id as already mapped.
func (s *TestService) SetExistingMapping(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappedUsers[userID] = true
}

// FailWith makes every call reply with the given status.
func (s *TestService) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// Calls returns the route names served, in order.
func (s *TestService) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount returns how many times the named route was served.
func (s *TestService) CallCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}

// LastAuthToken returns the x-auth-token header of the last call served.
func (s *TestService) LastAuthToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuthToken
}

// LastMappingBody returns the body of the last mapping creation call.
func (s *TestService) LastMappingBody() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.lastMappingBody...)
}

// LastTokenCreateBody returns the body of the last token creation call.
func (s *TestService) LastTokenCreateBody() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.lastTokenCreateBody...)
}

func (s *TestService) writeJSON(w http.ResponseWriter, out interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

const mappingPrefix = "/luma/local_feed/storage_access/all/onedata_user_to_credentials"

// ServeHTTP implements the test service's http.Handler.
func (s *TestService) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.t.Helper()

	s.lastAuthToken = req.Header.Get("X-Auth-Token")

	if s.failStatus != 0 {
		s.calls = append(s.calls, "fail")
		w.WriteHeader(s.failStatus)
		return
	}

	path := req.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v3/onezone/user/tokens/named/name/"):
		s.calls = append(s.calls, "token-lookup")
		if s.existingToken == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.writeJSON(w, map[string]interface{}{
			"token": s.existingToken,
			"subject": map[string]string{
				"type": "user",
				"id":   s.existingUserID,
			},
		})

	case path == "/api/v3/onezone/user/tokens/named":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.calls = append(s.calls, "token-create")
		body, _ := io.ReadAll(req.Body)
		s.lastTokenCreateBody = body
		s.writeJSON(w, map[string]string{"token": s.createdToken})

	case path == "/api/v3/onezone/user":
		s.calls = append(s.calls, "user-resolve")
		s.writeJSON(w, map[string]string{"userId": s.userID})

	case strings.Contains(path, mappingPrefix):
		storageOk := strings.HasPrefix(path, "/api/v3/onepanel/provider/storages/")
		if !storageOk {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		rest := path[strings.Index(path, mappingPrefix)+len(mappingPrefix):]
		switch {
		case req.Method == http.MethodGet && strings.HasPrefix(rest, "/"):
			s.calls = append(s.calls, "mapping-lookup")
			if !s.mappedUsers[strings.TrimPrefix(rest, "/")] {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			s.writeJSON(w, map[string]interface{}{})
		case req.Method == http.MethodPost && rest == "":
			s.calls = append(s.calls, "mapping-create")
			body, _ := io.ReadAll(req.Body)
			s.lastMappingBody = body
			var mapping struct {
				OnedataUser struct {
					OnedataUserID string `json:"onedataUserId"`
				} `json:"onedataUser"`
			}
			if err := json.Unmarshal(body, &mapping); err == nil {
				s.mappedUsers[mapping.OnedataUser.OnedataUserID] = true
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
