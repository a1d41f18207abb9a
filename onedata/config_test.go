package onedata

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults-to-the-egi-datahub", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		conf, err := NewConfig()
		require.NoError(err)
		assert.Equal(DefaultOnezoneURL, conf.OnezoneURL)
		assert.Equal(DefaultOneproviderHost, conf.OneproviderHost)
		assert.Equal(DefaultTokenName, conf.TokenName)
		assert.Equal(DefaultStorageUID, conf.StorageUID)
		assert.Equal(DefaultTokenEnv, conf.TokenEnv)
		assert.Equal(DefaultOneproviderEnv, conf.OneproviderEnv)
		assert.Equal(DefaultOnezoneEnv, conf.OnezoneEnv)
		assert.False(conf.MapUsers)
	})

	t.Run("trailing-slashes-are-trimmed", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		conf, err := NewConfig(
			WithOnezoneURL("https://onezone.example.org/"),
			WithOnepanelURL("https://onepanel.example.org/"),
			WithUserMapping("panel-token", "storage-1"),
		)
		require.NoError(err)
		assert.Equal("https://onezone.example.org", conf.OnezoneURL)
		assert.Equal("https://onepanel.example.org", conf.OnepanelURL)
	})

	t.Run("invalid-onezone-url", func(t *testing.T) {
		require := require.New(t)
		_, err := NewConfig(WithOnezoneURL("not a url"))
		require.Error(err)
		require.True(errors.Is(err, ErrInvalidParameter))
	})

	t.Run("mapping-requires-token-and-storage", func(t *testing.T) {
		require := require.New(t)
		_, err := NewConfig(WithUserMapping("", ""))
		require.Error(err)
		require.True(errors.Is(err, ErrInvalidParameter))
		require.Contains(err.Error(), "onepanel token")
		require.Contains(err.Error(), "storage id")
	})

	t.Run("mapping-requires-positive-uid", func(t *testing.T) {
		require := require.New(t)
		_, err := NewConfig(
			WithUserMapping("panel-token", "storage-1"),
			WithStorageUID(0),
		)
		require.Error(err)
		require.True(errors.Is(err, ErrInvalidParameter))
	})

	t.Run("empty-env-names", func(t *testing.T) {
		require := require.New(t)
		_, err := NewConfig(WithEnvNames("", ""))
		require.Error(err)
		require.True(errors.Is(err, ErrInvalidParameter))
	})
}

func TestConfig_URLs(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	conf, err := NewConfig(
		WithOnezoneURL("https://onezone.example.org"),
		WithOneproviderHost("oneprovider.example.org"),
		WithTokenName("my-notebooks"),
		WithUserMapping("panel-token", "storage-1"),
	)
	require.NoError(err)

	assert.Equal("https://onezone.example.org/api/v3/onezone/user/tokens/named/name/my-notebooks", conf.namedTokenURL())
	assert.Equal("https://onezone.example.org/api/v3/onezone/user/tokens/named", conf.namedTokensURL())
	assert.Equal("https://onezone.example.org/api/v3/onezone/user", conf.currentUserURL())

	// onepanel is derived from the oneprovider host on its fixed port
	mapping := conf.mappingURL("user-1")
	assert.True(strings.HasPrefix(mapping, "https://oneprovider.example.org:9443/api/v3/onepanel/provider/storages/storage-1/"), mapping)
	assert.True(strings.HasSuffix(mapping, "/onedata_user_to_credentials/user-1"), mapping)
	assert.True(strings.HasSuffix(conf.mappingURL(""), "/onedata_user_to_credentials"))

	conf.OnepanelURL = "https://onepanel.example.org"
	assert.True(strings.HasPrefix(conf.mappingURL("user-1"), "https://onepanel.example.org/api/v3/onepanel/"))
}

func TestConfig_Validate_CollectsAllProblems(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	c := &Config{}
	err := c.Validate()
	require.Error(err)
	require.True(errors.Is(err, ErrInvalidParameter))
	require.Contains(err.Error(), "onezone URL is empty")
	require.Contains(err.Error(), "token name is empty")
	require.Contains(err.Error(), "environment variable names are empty")
}
