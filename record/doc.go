// Package record decodes the typed records returned by the record database.
//
// Every field arrives as a {type, value} pair. Decoding is driven by the tag:
// an INT64 or TIMESTAMP value is read as a 64-bit integer even when the JSON
// carries it as a double, and ENCRYPTED_BYTES stays base64 text until a
// [Record] accessor unwraps it. Accessors never fail; they return the caller's
// default when a field is missing or carries another tag.
package record
