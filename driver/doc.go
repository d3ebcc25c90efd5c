// File: driver/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package driver is the in-process stream fabric the archive records
// from and replays into. It stands in for an external media driver:
// publications append aligned frames to a per-stream in-memory log,
// images consume that log at their own pace, and positions follow the
// term rotation model, so a position maps to exactly one termID and
// termOffset given the initial term id and term length.
package driver
