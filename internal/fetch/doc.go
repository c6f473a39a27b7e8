// Package fetch retrieves URLs over HTTP with bounded retries.
//
// Every request is attempted up to Policy.MaxAttempts times. Network errors,
// per-attempt timeouts, 5xx responses and 429 responses are retried with
// exponential backoff and jitter; a 429 waits for its Retry-After instead,
// capped at the policy's maximum delay. Other 4xx responses, cancellation of
// the caller's context and errors of a storage sink end the request at once.
//
// The fetcher never fails the caller: every call returns a Result carrying
// the terminal Status, the attempt count and the last error.
package fetch
