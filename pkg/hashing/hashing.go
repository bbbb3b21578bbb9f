// Package hashing provides the pluggable hash functions used to bucket the
// in-process lookup cache into independently-locked stripes. This spec has
// no hash-range sharding (tenant placement is directory-driven, not
// consistent-hash-driven), so the ring implementation that used to live
// here is gone; only the HashFunction abstraction survives, repurposed as
// a cache-striping function in pkg/lookupcache.
package hashing

import (
	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// HashFunction defines the interface for hash functions
type HashFunction interface {
	Hash(key string) uint64
}

// Murmur3Hash implements Murmur3 hash
type Murmur3Hash struct{}

func (m *Murmur3Hash) Hash(key string) uint64 {
	h := murmur3.New64()
	h.Write([]byte(key))
	return h.Sum64()
}

// XXHash implements xxHash
type XXHash struct{}

func (x *XXHash) Hash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// NewHashFunction creates a hash function based on name
func NewHashFunction(name string) HashFunction {
	switch name {
	case "xxhash":
		return &XXHash{}
	case "murmur3":
		fallthrough
	default:
		return &Murmur3Hash{}
	}
}
