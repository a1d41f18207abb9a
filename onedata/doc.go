/*
onedata is a package for arranging Onedata storage credentials for notebook
sessions authenticated through EGI Check-in.

* TokenBroker exchanges the session's federated access token for an Onedata
access token through the onezone named-token API, reusing the token with the
configured label when one exists from an earlier login.

* Mapper establishes a mapping between the Onedata user and a fixed local
POSIX credential through the onepanel LUMA local feed API, creating the
mapping only when it doesn't already exist.

Both follow the same reuse-or-create pattern: a lookup that treats HTTP 404
as the signal to create, and any other failure as a hard error that fails
the login or session spawn closed.
*/
package onedata
