// Package hashing maps keys onto a fixed set of nodes with a consistent
// hash ring. The hub uses it to pin each push channel to one shard so
// that channel's messages keep their publish order.
package hashing

import (
	"hash/crc32"
	"slices"
	"sort"
	"strconv"
	"sync"
)

const DefaultReplicas = 64

type Ring struct {
	nodes    []uint32
	registry map[uint32]string
	replicas int
	mu       sync.RWMutex
}

func NewRing(replicas int) *Ring {
	if replicas <= 0 {
		replicas = DefaultReplicas
	}
	return &Ring{
		registry: make(map[uint32]string),
		replicas: replicas,
	}
}

func hash(key string) uint32 {
	return crc32.ChecksumIEEE([]byte(key))
}

func (r *Ring) Add(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < r.replicas; i++ {
		identity := node + "#" + strconv.Itoa(i)
		hashedIdentity := hash(identity)
		if _, ok := r.registry[hashedIdentity]; !ok {
			r.registry[hashedIdentity] = node
			r.nodes = append(r.nodes, hashedIdentity)
		}
	}
	slices.Sort(r.nodes)
}

// Remove drops every virtual point of node. Keys it owned move to the next
// node clockwise; all other keys stay put.
func (r *Ring) Remove(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.nodes[:0]
	for _, h := range r.nodes {
		if r.registry[h] == node {
			delete(r.registry, h)
			continue
		}
		kept = append(kept, h)
	}
	r.nodes = kept
}

// Get returns the node owning key, or "" on an empty ring.
func (r *Ring) Get(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 {
		return ""
	}

	keyHash := hash(key)

	idx := sort.Search(len(r.nodes), func(i int) bool {
		return r.nodes[i] >= keyHash
	})

	if idx == len(r.nodes) {
		idx = 0
	}

	return r.registry[r.nodes[idx]]
}
