/*
hub composes the Check-in OIDC core and the Onedata storage stages into the
authenticator a hosting notebook platform drives.

The platform supplies a Session (which loads the persisted AuthState) and a
Spawner (whose environment is populated before the session process starts).
Optional spawner capabilities, like receiving fresh access tokens, are
resolved once when the Binding is created.

The platform calls Authenticate at login, Refresh on its periodic
session-refresh tick, and PreSpawnStart right before starting the session
process. AuthStates returned from Authenticate and Refresh are the
platform's to persist.
*/
package hub
