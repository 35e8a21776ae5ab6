//nolint:revive // types is a common Go package naming convention
package types

// Version is the canonical ordo version.
const Version = "0.3.0"

// ContractVersion is the version stamped on persisted records and published events.
const ContractVersion = "1.0.0"
