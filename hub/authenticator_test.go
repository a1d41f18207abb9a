package hub

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EGI-Foundation/egi-notebooks-auth/checkin"
	"github.com/EGI-Foundation/egi-notebooks-auth/onedata"
)

type fakeSession struct {
	state *checkin.AuthState
	err   error
}

func (s *fakeSession) AuthState(context.Context) (*checkin.AuthState, error) {
	return s.state, s.err
}

type fakeSpawner struct {
	env map[string]string
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{env: map[string]string{}}
}

func (s *fakeSpawner) Environment() map[string]string { return s.env }

// fakeTokenSpawner additionally accepts pushed access tokens.
type fakeTokenSpawner struct {
	fakeSpawner
	accessToken string
	idToken     string
	setCalls    int
}

func (s *fakeTokenSpawner) SetAccessToken(accessToken, idToken string) {
	s.accessToken = accessToken
	s.idToken = idToken
	s.setCalls++
}

func testCore(t *testing.T, tp *checkin.TestProvider) *checkin.Authenticator {
	t.Helper()
	require := require.New(t)
	tp.SetClientCreds("test-client-id", "test-client-secret")
	c, err := checkin.NewConfig("test-client-id", "test-client-secret", "https://hub.example.org/callback",
		checkin.WithHost(tp.Host()),
		checkin.WithProviderCA(tp.CACert()),
		checkin.WithSigningAlgs(checkin.ES256),
	)
	require.NoError(err)
	core, err := checkin.New(c)
	require.NoError(err)
	t.Cleanup(core.Done)
	return core
}

func testLoginRequest(t *testing.T, tp *checkin.TestProvider) *checkin.Request {
	t.Helper()
	require := require.New(t)
	req, err := checkin.NewRequest(2 * time.Minute)
	require.NoError(err)
	tp.SetExpectedAuthCode("test-auth-code")
	tp.SetExpectedAuthNonce(req.Nonce())
	return req
}

func TestAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("login-brokers-a-storage-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		ts := onedata.StartTestService(t)
		conf, err := onedata.NewConfig(onedata.WithOnezoneURL(ts.URL()))
		require.NoError(err)
		a, err := New(testCore(t, tp), WithOnedata(conf))
		require.NoError(err)
		req := testLoginRequest(t, tp)

		state, identity, err := a.Authenticate(ctx, req, req.State(), "test-auth-code")
		require.NoError(err)
		assert.Equal("jdoe", identity.Username)
		assert.Equal("access-token-1", state.AccessToken)
		assert.Equal("created-onedata-token", state.OnedataToken)
		assert.Equal("onedata-user-1", state.OnedataUser)
		assert.Equal([]string{"token-lookup", "token-create", "user-resolve"}, ts.Calls())
		assert.Equal("egi:access-token-1", ts.LastAuthToken())
	})

	t.Run("existing-storage-token-is-reused", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		ts := onedata.StartTestService(t)
		ts.SetExistingToken("existing-onedata-token", "onedata-user-7")
		conf, err := onedata.NewConfig(onedata.WithOnezoneURL(ts.URL()))
		require.NoError(err)
		a, err := New(testCore(t, tp), WithOnedata(conf))
		require.NoError(err)
		req := testLoginRequest(t, tp)

		state, _, err := a.Authenticate(ctx, req, req.State(), "test-auth-code")
		require.NoError(err)
		assert.Equal("existing-onedata-token", state.OnedataToken)
		assert.Equal("onedata-user-7", state.OnedataUser)
		assert.Equal([]string{"token-lookup"}, ts.Calls())
	})

	t.Run("broker-failure-fails-the-login", func(t *testing.T) {
		require := require.New(t)
		tp := checkin.StartTestProvider(t)
		ts := onedata.StartTestService(t)
		ts.FailWith(http.StatusInternalServerError)
		conf, err := onedata.NewConfig(onedata.WithOnezoneURL(ts.URL()))
		require.NoError(err)
		a, err := New(testCore(t, tp), WithOnedata(conf))
		require.NoError(err)
		req := testLoginRequest(t, tp)

		state, identity, err := a.Authenticate(ctx, req, req.State(), "test-auth-code")
		require.Error(err)
		require.True(errors.Is(err, onedata.ErrUpstream))
		require.Nil(state)
		require.Nil(identity)
	})

	t.Run("without-onedata-authentication-ends-after-policies", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		a, err := New(testCore(t, tp))
		require.NoError(err)
		req := testLoginRequest(t, tp)

		state, _, err := a.Authenticate(ctx, req, req.State(), "test-auth-code")
		require.NoError(err)
		assert.Equal("access-token-1", state.AccessToken)
		assert.Empty(state.OnedataToken)
		assert.Empty(state.OnedataUser)
	})
}

func TestAuthenticator_PreSpawnStart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	onedataState := &checkin.AuthState{
		AccessToken:  "access-token-1",
		OnedataToken: "onedata-token-1",
		OnedataUser:  "onedata-user-1",
	}

	t.Run("writes-storage-environment", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		ts := onedata.StartTestService(t)
		conf, err := onedata.NewConfig(
			onedata.WithOnezoneURL(ts.URL()),
			onedata.WithOneproviderHost("oneprovider.example.org"),
		)
		require.NoError(err)
		a, err := New(testCore(t, tp), WithOnedata(conf))
		require.NoError(err)

		spawner := newFakeSpawner()
		b, err := NewBinding(&fakeSession{state: onedataState}, spawner)
		require.NoError(err)

		require.NoError(a.PreSpawnStart(ctx, b))
		assert.Equal("onedata-token-1", spawner.env[onedata.DefaultTokenEnv])
		assert.Equal("oneprovider.example.org", spawner.env[onedata.DefaultOneproviderEnv])
		assert.Equal(ts.URL(), spawner.env[onedata.DefaultOnezoneEnv])
		// mapping is not enabled, so onepanel is never called
		assert.Empty(ts.Calls())
	})

	t.Run("establishes-the-identity-mapping", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		ts := onedata.StartTestService(t)
		conf, err := onedata.NewConfig(
			onedata.WithOnezoneURL(ts.URL()),
			onedata.WithOnepanelURL(ts.URL()),
			onedata.WithUserMapping("test-onepanel-token", "storage-1"),
		)
		require.NoError(err)
		a, err := New(testCore(t, tp), WithOnedata(conf))
		require.NoError(err)

		spawner := newFakeSpawner()
		b, err := NewBinding(&fakeSession{state: onedataState}, spawner)
		require.NoError(err)

		require.NoError(a.PreSpawnStart(ctx, b))
		assert.Equal([]string{"mapping-lookup", "mapping-create"}, ts.Calls())
	})

	t.Run("mapping-failure-aborts-the-spawn", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		ts := onedata.StartTestService(t)
		ts.FailWith(http.StatusInternalServerError)
		conf, err := onedata.NewConfig(
			onedata.WithOnezoneURL(ts.URL()),
			onedata.WithOnepanelURL(ts.URL()),
			onedata.WithUserMapping("test-onepanel-token", "storage-1"),
		)
		require.NoError(err)
		a, err := New(testCore(t, tp), WithOnedata(conf))
		require.NoError(err)

		spawner := newFakeSpawner()
		b, err := NewBinding(&fakeSession{state: onedataState}, spawner)
		require.NoError(err)

		err = a.PreSpawnStart(ctx, b)
		require.Error(err)
		require.True(errors.Is(err, onedata.ErrUpstream))
		// the environment is still written before the mapping attempt
		assert.Equal("onedata-token-1", spawner.env[onedata.DefaultTokenEnv])
	})

	t.Run("pushes-the-access-token-when-supported", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		a, err := New(testCore(t, tp))
		require.NoError(err)

		spawner := &fakeTokenSpawner{fakeSpawner: *newFakeSpawner()}
		b, err := NewBinding(&fakeSession{state: onedataState}, spawner)
		require.NoError(err)

		require.NoError(a.PreSpawnStart(ctx, b))
		assert.Equal(1, spawner.setCalls)
		assert.Equal("access-token-1", spawner.accessToken)
	})

	t.Run("nil-auth-state-is-a-no-op", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		ts := onedata.StartTestService(t)
		conf, err := onedata.NewConfig(onedata.WithOnezoneURL(ts.URL()))
		require.NoError(err)
		a, err := New(testCore(t, tp), WithOnedata(conf))
		require.NoError(err)

		spawner := newFakeSpawner()
		b, err := NewBinding(&fakeSession{state: nil}, spawner)
		require.NoError(err)

		require.NoError(a.PreSpawnStart(ctx, b))
		assert.Empty(spawner.env)
	})

	t.Run("nil-binding", func(t *testing.T) {
		require := require.New(t)
		tp := checkin.StartTestProvider(t)
		a, err := New(testCore(t, tp))
		require.NoError(err)
		require.ErrorIs(a.PreSpawnStart(ctx, nil), ErrNilParameter)
	})
}

func TestAuthenticator_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	expiredState := func() *checkin.AuthState {
		return &checkin.AuthState{
			AccessToken:  "stale-access-token",
			RefreshToken: "test-refresh-token",
			RefreshInfo: &checkin.RefreshInfo{
				ExpiryTime: time.Now().Add(-time.Minute).Unix(),
			},
		}
	}

	t.Run("refreshed-token-is-pushed-and-returned-for-persistence", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		a, err := New(testCore(t, tp))
		require.NoError(err)

		spawner := &fakeTokenSpawner{fakeSpawner: *newFakeSpawner()}
		b, err := NewBinding(&fakeSession{state: expiredState()}, spawner)
		require.NoError(err)

		state, status, err := a.Refresh(ctx, b)
		require.NoError(err)
		assert.Equal(checkin.Refreshed, status)
		require.NotNil(state)
		assert.Equal("refreshed-access-token-1", state.AccessToken)
		assert.Equal(1, spawner.setCalls)
		assert.Equal("refreshed-access-token-1", spawner.accessToken)
		assert.NotEmpty(spawner.idToken)
	})

	t.Run("still-valid-token-returns-no-state", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		a, err := New(testCore(t, tp))
		require.NoError(err)

		sess := &fakeSession{state: &checkin.AuthState{
			AccessToken:  "fresh-access-token",
			RefreshToken: "test-refresh-token",
			RefreshInfo: &checkin.RefreshInfo{
				ExpiryTime: time.Now().Add(time.Hour).Unix(),
			},
		}}
		b, err := NewBinding(sess, newFakeSpawner())
		require.NoError(err)

		state, status, err := a.Refresh(ctx, b)
		require.NoError(err)
		assert.Equal(checkin.RefreshStillValid, status)
		assert.Nil(state)
		assert.Equal(0, tp.RefreshGrants())
	})

	t.Run("no-refresh-token-is-unavailable", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		a, err := New(testCore(t, tp))
		require.NoError(err)

		sess := &fakeSession{state: &checkin.AuthState{AccessToken: "access-token-1"}}
		b, err := NewBinding(sess, newFakeSpawner())
		require.NoError(err)

		state, status, err := a.Refresh(ctx, b)
		require.NoError(err)
		assert.Equal(checkin.RefreshUnavailable, status)
		assert.Nil(state)
	})

	t.Run("session-load-failure", func(t *testing.T) {
		require := require.New(t)
		tp := checkin.StartTestProvider(t)
		a, err := New(testCore(t, tp))
		require.NoError(err)

		b, err := NewBinding(&fakeSession{err: errors.New("store down")}, newFakeSpawner())
		require.NoError(err)

		_, status, err := a.Refresh(ctx, b)
		require.Error(err)
		require.Equal(checkin.RefreshUnavailable, status)
	})

	t.Run("spawner-without-the-capability-still-persists", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := checkin.StartTestProvider(t)
		a, err := New(testCore(t, tp))
		require.NoError(err)

		b, err := NewBinding(&fakeSession{state: expiredState()}, newFakeSpawner())
		require.NoError(err)

		state, status, err := a.Refresh(ctx, b)
		require.NoError(err)
		assert.Equal(checkin.Refreshed, status)
		require.NotNil(state)
		assert.Equal("refreshed-access-token-1", state.AccessToken)
	})
}

func TestNewBinding(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	_, err := NewBinding(nil, newFakeSpawner())
	require.ErrorIs(err, ErrNilParameter)
	_, err = NewBinding(&fakeSession{}, nil)
	require.ErrorIs(err, ErrNilParameter)

	// the setter capability is resolved once at construction time
	plain, err := NewBinding(&fakeSession{}, newFakeSpawner())
	require.NoError(err)
	assert.False(plain.CanSetAccessToken())

	withSetter, err := NewBinding(&fakeSession{}, &fakeTokenSpawner{fakeSpawner: *newFakeSpawner()})
	require.NoError(err)
	assert.True(withSetter.CanSetAccessToken())
}

func TestNew(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	_, err := New(nil)
	require.ErrorIs(err, ErrNilParameter)

	// an invalid onedata config surfaces at construction
	tp := checkin.StartTestProvider(t)
	_, err = New(testCore(t, tp), WithOnedata(&onedata.Config{}))
	require.Error(err)
}
