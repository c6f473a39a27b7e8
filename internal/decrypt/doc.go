// Package decrypt recovers CSV files whose fields were encrypted with DES
// using keys found on the same site.
//
// Each non-empty field of such a file is the base64 encoding of the
// DES-ECB ciphertext of the PKCS#7 padded UTF-8 value. Candidate keys are
// derived from the site's key findings: the finding value truncated or
// zero-padded to eight bytes. The first key that decrypts every field wins,
// and the plain file is written to a "decrypted" directory next to the
// download. Outcomes are recorded in the tracking document; download
// records themselves are never changed.
package decrypt
