// Package main is subctl, the command-line companion to the subtitle-indexer
// server.
//
// subctl works directly against the SQLite store and status file under the
// configured data directory, so it can index, search and maintain a library
// without the HTTP server running. Configuration is resolved the same way the
// server resolves it, with flags applied last.
package main
