package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Domain prefixes for derived identities.
// The version suffix allows the derivation to change without collisions.
const (
	DomainSnapshot        = "seiql/snapshot/v1"
	DomainDatabaseAddress = "seiql/database-address/v1"
	DomainTableAddress    = "seiql/table-address/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

// SnapshotChecksum identifies mirror snapshot contents in logs.
func SnapshotChecksum(data []byte) string {
	return hex.EncodeToString(hashWithDomain(DomainSnapshot, data))
}

// DeriveDatabaseAddress computes the address a development chain assigns to
// a new database contract. The nonce separates repeated deployments by the
// same owner under the same name.
func DeriveDatabaseAddress(owner Address, name string, nonce uint64) Address {
	return deriveAddress(DomainDatabaseAddress, owner, name, nonce)
}

// DeriveTableAddress computes the address of a table contract created by a
// database contract.
func DeriveTableAddress(database Address, table string, nonce uint64) Address {
	return deriveAddress(DomainTableAddress, database, table, nonce)
}

func deriveAddress(domain string, parent Address, name string, nonce uint64) Address {
	data := make([]byte, 0, AddressLength+len(name)+9)
	data = append(data, parent[:]...)
	data = append(data, name...)
	data = append(data, 0x00)
	data = binary.BigEndian.AppendUint64(data, nonce)

	sum := hashWithDomain(domain, data)
	var a Address
	copy(a[:], sum[len(sum)-AddressLength:])
	return a
}
