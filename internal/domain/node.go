package domain

import "time"

// Node is a bare-metal machine registration. The metadata front end
// authenticates the node; this record maps it to its tenant scope.
type Node struct {
	ID        string
	Scope     TenantScope
	CreatedAt time.Time
}
