package onedata

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// Mapper establishes a mapping between an Onedata user and a local POSIX
// storage credential through the onepanel LUMA local feed API. Mapping is
// idempotent: an existing mapping is never recreated.
type Mapper struct {
	conf   *Config
	client *client
	logger hclog.Logger
}

// NewMapper creates a Mapper from the config. The config must have user
// mapping enabled (see WithUserMapping).
func NewMapper(conf *Config) (*Mapper, error) {
	const op = "onedata.NewMapper"
	if conf == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	if !conf.MapUsers {
		return nil, fmt.Errorf("%s: user mapping is not enabled: %w", op, ErrInvalidParameter)
	}
	httpClient, err := conf.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger := conf.logger().Named("luma")
	return &Mapper{
		conf:   conf,
		client: &client{httpClient: httpClient, logger: logger},
		logger: logger,
	}, nil
}

// lumaMapping pairs an Onedata user with the fixed POSIX credential
// descriptor.
type lumaMapping struct {
	OnedataUser lumaOnedataUser `json:"onedataUser"`
	StorageUser lumaStorageUser `json:"storageUser"`
}

type lumaOnedataUser struct {
	MappingScheme string `json:"mappingScheme"`
	OnedataUserID string `json:"onedataUserId"`
}

type lumaStorageUser struct {
	StorageCredentials lumaStorageCredentials `json:"storageCredentials"`
	DisplayUID         int                    `json:"displayUid"`
}

type lumaStorageCredentials struct {
	Type string `json:"type"`
	UID  int    `json:"uid"`
}

// EnsureMapping creates the user-to-credentials mapping for the Onedata user
// unless one already exists. Any failure other than a not-found lookup is
// returned and aborts session spawn.
func (m *Mapper) EnsureMapping(ctx context.Context, onedataUserID string) error {
	const op = "onedata.(Mapper).EnsureMapping"
	if onedataUserID == "" {
		return fmt.Errorf("%s: onedata user id is empty: %w", op, ErrInvalidParameter)
	}

	lookup := func(ctx context.Context) error {
		return m.client.get(ctx, m.conf.mappingURL(onedataUserID), m.conf.OnepanelToken, nil)
	}
	create := func(ctx context.Context) error {
		mapping := lumaMapping{
			OnedataUser: lumaOnedataUser{
				MappingScheme: "onedataUser",
				OnedataUserID: onedataUserID,
			},
			StorageUser: lumaStorageUser{
				StorageCredentials: lumaStorageCredentials{
					Type: "posix",
					UID:  m.conf.StorageUID,
				},
				DisplayUID: m.conf.StorageUID,
			},
		}
		return m.client.post(ctx, m.conf.mappingURL(""), m.conf.OnepanelToken, mapping, nil)
	}

	created, err := ensure(ctx, lookup, create)
	if err != nil {
		return fmt.Errorf("%s: user %q: %w", op, onedataUserID, err)
	}
	if created {
		m.logger.Debug("created storage credentials mapping", "user", onedataUserID, "uid", m.conf.StorageUID)
	} else {
		m.logger.Debug("storage credentials mapping already exists", "user", onedataUserID)
	}
	return nil
}
