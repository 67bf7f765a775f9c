// Package access resolves what a user may do with notebooks, notes, and
// labels.
//
// Resolution is centralized here so every surface (REST handlers, the
// realtime gateway, background jobs) answers permission questions the same
// way. The rules are small and strict:
//
//   - Admins act as owners of everything.
//   - The notebook owner holds the owner level.
//   - Everyone else needs a share row, and a share grants at most write:
//     owner-level operations can never be satisfied through a share.
//   - Notes inherit access from their parent notebook.
//   - Label batches validate all-or-nothing: one bad label fails the batch.
//
// Existence is checked before permission: a missing resource is ErrNotFound
// even for callers who would have been denied anyway.
package access
