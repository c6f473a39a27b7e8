// Package download fetches file artifacts discovered by the crawler and
// stores them under one directory per domain.
//
// The Manager deduplicates by URL against the tracking store, streams each
// file to a temporary file while hashing it, and moves it to a unique name
// once complete. Downloads run on their own bounded worker pool, fed by the
// crawler over a channel, so page fetching and file transfer never compete
// for the same slots.
package download
