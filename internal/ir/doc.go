// Package ir provides the value, record and change-set types shared by every
// layer of the coordinator, together with their canonical JSON encoding.
//
// This package has no internal imports. All other internal packages import
// ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float or null values in record attributes
//   - WAL payloads are canonical JSON (sorted keys, NFC strings)
//   - the error taxonomy lives here so every layer reports the same codes
package ir
