// Package checkpoint records the progress of bulk caption runs so an
// interrupted batch can resume without rewriting captions it already set.
//
// A checkpoint tracks:
//   - media ids already captioned, with the owning status
//   - media ids that failed and why (retried on resume)
//   - overall progress counters
//
// Checkpoints are stored in platform-specific data directories:
//   - Linux: $XDG_DATA_HOME/fedicaption/checkpoints/ or ~/.local/share/fedicaption/checkpoints/
//   - macOS: ~/Library/Application Support/fedicaption/checkpoints/
//   - Windows: %APPDATA%/fedicaption/checkpoints/
//
// Files are written atomically and carry a version number.
package checkpoint
