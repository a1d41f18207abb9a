package checkin

import (
	"errors"
)

var (
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrNilParameter        = errors.New("nil parameter")
	ErrInvalidCACert       = errors.New("invalid CA certificate")
	ErrIdGeneratorFailed   = errors.New("id generation failed")
	ErrExpiredRequest      = errors.New("authentication request is expired")
	ErrResponseState       = errors.New("authentication response state is invalid")
	ErrMissingAccessToken  = errors.New("access_token is missing")
	ErrMissingClaim        = errors.New("required claim is missing")
	ErrIdTokenVerification = errors.New("id_token verification failed")
	ErrInvalidNonce        = errors.New("invalid nonce")
	ErrInvalidAudience     = errors.New("invalid audience")
	ErrUserInfoFailed      = errors.New("userinfo request failed")
	ErrTokenEndpoint       = errors.New("token endpoint request failed")
	ErrPolicyDenied        = errors.New("authorization policy denied login")
)
