package access

// Permission is an access level on a notebook. Levels are ordered:
// owner > write > read.
type Permission string

const (
	PermRead  Permission = "read"
	PermWrite Permission = "write"
	PermOwner Permission = "owner"
)

// Valid reports whether p is a known level.
func (p Permission) Valid() bool {
	switch p {
	case PermRead, PermWrite, PermOwner:
		return true
	}
	return false
}

// Shareable reports whether p may be granted through a share.
// Ownership is never shareable.
func (p Permission) Shareable() bool {
	return p == PermRead || p == PermWrite
}

// Satisfies reports whether holding p meets a requirement of need.
func (p Permission) Satisfies(need Permission) bool {
	return p.rank() >= need.rank()
}

func (p Permission) rank() int {
	switch p {
	case PermRead:
		return 1
	case PermWrite:
		return 2
	case PermOwner:
		return 3
	}
	return 0
}
