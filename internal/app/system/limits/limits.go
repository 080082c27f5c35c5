// internal/app/system/limits/limits.go
package limits

// Request body size limits for the JSON API.
// These limits help prevent memory exhaustion from oversized requests.
const (
	// MaxAdminBody caps admin request bodies, which carry at most a
	// rejection reason or a delete confirmation.
	MaxAdminBody = 64 << 10 // 64 KB

	// MaxMemberBody caps member request bodies, which carry post and
	// comment HTML.
	MaxMemberBody = 256 << 10 // 256 KB
)
