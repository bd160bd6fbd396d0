package tariff

import "errors"

// ErrMalformedDocument is returned when a document does not contain the tables
// a Selection points at. It is distinct from a successful parse that emits zero rows.
var ErrMalformedDocument = errors.New("malformed document")
