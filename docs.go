// auth provides the authentication, authorization and credential-brokering
// stages a multi-user notebook platform needs to run on top of the EGI
// Check-in identity federation and the EGI DataHub (Onedata) storage.
//
// See the checkin, onedata and hub packages.
package auth
