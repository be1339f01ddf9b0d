package server

// Role is the node's configured position in the topology. It gates
// whether this process accepts key operations at all; no replication
// protocol is implemented behind it.
type Role string

const (
	RolePrimary Role = "primary"
	RoleReplica Role = "replica"
)
