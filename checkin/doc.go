/*
checkin is a package for authenticating notebook users against the EGI
Check-in OpenID Connect federation and authorizing them by their federated
claims.

Primary types provided by the package:

* Config: the relying party configuration. All Check-in endpoints are
derived from a single host using fixed path suffixes; the client id and
secret fall back to environment variables so the package drops into a
deployed hub without literal secrets in config files.

* Request: represents one OIDC authentication flow for a user, carrying the
state and nonce that uniquely identify the attempt across the flow's
interactions.

* Authenticator: performs the authorization code exchange, verifies the
id_token, fetches userinfo, resolves the canonical identity and evaluates
the authorization policies. It also refreshes a session's credentials when
they approach expiry (see Refresh and RefreshStatus).

* Policy and ClaimSet: a pure claim evaluator. Each policy pairs a claim key
with an allow-list of values; login requires every active policy to pass.

* AuthState: the persisted per-session credential bundle returned from
Authenticate and mutated by Refresh. The hosting platform stores it as
opaque JSON and hands it back for refresh and session-spawn calls.
*/
package checkin
