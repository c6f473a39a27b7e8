// Package tor provides the HTTP clients used to reach seed sites.
//
// A Factory hands out clients per site according to a Mode: direct
// connections, an external SOCKS5 proxy (normally the local Tor daemon),
// or a Tor daemon embedded with tornago. In auto mode only .onion hosts go
// through the proxy. Onion hosts are validated (v3 checksum) before any
// connection is attempted.
package tor
