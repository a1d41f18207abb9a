package onedata

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// TokenBroker exchanges a federated Check-in access token for an Onedata
// access token, reusing the named token with the configured label when one
// already exists. It runs once, synchronously, as the final step of
// authentication; any failure other than a not-found lookup fails the login
// closed.
type TokenBroker struct {
	conf   *Config
	client *client
	logger hclog.Logger
}

// NewTokenBroker creates a TokenBroker from the config.
func NewTokenBroker(conf *Config) (*TokenBroker, error) {
	const op = "onedata.NewTokenBroker"
	if conf == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	httpClient, err := conf.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger := conf.logger().Named("token-broker")
	return &TokenBroker{
		conf:   conf,
		client: &client{httpClient: httpClient, logger: logger},
		logger: logger,
	}, nil
}

// BrokeredToken is an Onedata access token together with the onezone user id
// owning it.
type BrokeredToken struct {
	Token  string
	UserID string
}

// namedTokenReply is a named token lookup response. The subject carries the
// owning user.
type namedTokenReply struct {
	Token   string `json:"token"`
	Subject struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"subject"`
}

// createTokenRequest describes the named token to create: an access token
// restricted to the oneclient interface.
type createTokenRequest struct {
	Name string          `json:"name"`
	Type createTokenType `json:"type"`
	// Caveats restrict how the created token can be used.
	Caveats []tokenCaveat `json:"caveats,omitempty"`
}

type createTokenType struct {
	AccessToken struct{} `json:"accessToken"`
}

type tokenCaveat struct {
	Type      string `json:"type"`
	Interface string `json:"interface,omitempty"`
}

type createTokenReply struct {
	Token string `json:"token"`
}

type currentUserReply struct {
	UserID string `json:"userId"`
}

// Ensure returns the Onedata token named with the configured label, creating
// it when absent. Creation is a two-step call: the creation API does not
// echo the owning user id, so a follow-up user-resolution call fills it in.
func (b *TokenBroker) Ensure(ctx context.Context, accessToken string) (*BrokeredToken, error) {
	const op = "onedata.(TokenBroker).Ensure"
	if accessToken == "" {
		return nil, fmt.Errorf("%s: access token is empty: %w", op, ErrInvalidParameter)
	}
	auth := egiAuthToken(accessToken)

	var out BrokeredToken
	lookup := func(ctx context.Context) error {
		var reply namedTokenReply
		if err := b.client.get(ctx, b.conf.namedTokenURL(), auth, &reply); err != nil {
			return err
		}
		out.Token = reply.Token
		out.UserID = reply.Subject.ID
		return nil
	}
	create := func(ctx context.Context) error {
		req := createTokenRequest{
			Name: b.conf.TokenName,
			Caveats: []tokenCaveat{
				{Type: "interface", Interface: "oneclient"},
			},
		}
		var reply createTokenReply
		if err := b.client.post(ctx, b.conf.namedTokensURL(), auth, req, &reply); err != nil {
			return err
		}
		out.Token = reply.Token

		var user currentUserReply
		if err := b.client.get(ctx, b.conf.currentUserURL(), auth, &user); err != nil {
			return err
		}
		out.UserID = user.UserID
		return nil
	}

	created, err := ensure(ctx, lookup, create)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if created {
		b.logger.Debug("created onedata token", "name", b.conf.TokenName, "user", out.UserID)
	} else {
		b.logger.Debug("reusing onedata token", "name", b.conf.TokenName, "user", out.UserID)
	}
	return &out, nil
}
