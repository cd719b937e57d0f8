// Package auth resolves the key a provider handler verifies or calls with.
//
// Resolution order is static config, then a fresh cached OAuth token, then a
// refresh through the TokenRefresher. Resolution never fails: callers get an
// empty string when nothing usable is available.
package auth
