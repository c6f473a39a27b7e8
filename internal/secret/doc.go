// Package secret finds secret-like strings in page text and downloaded files.
//
// Detection is split into independent Classifier implementations so new
// pattern families can be added without touching the scanner:
//
//   - AssignmentClassifier matches "name = value" style assignments whose name
//     contains a sensitive keyword (password, key, token, ...).
//   - TokenClassifier matches structural tokens that need no surrounding name:
//     JWTs, bearer tokens, AWS access key IDs, private key blocks and database
//     URLs with embedded credentials.
//
// Scanner runs a set of classifiers over a text and turns the matches into
// model.KeyFinding values. ReadText extracts scannable text from a file on
// disk, including PDF metadata and image EXIF tags.
package secret
