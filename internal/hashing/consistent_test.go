package hashing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyRing(t *testing.T) {
	assert.Equal(t, "", NewRing(0).Get("room:1"))
}

func TestGetIsStable(t *testing.T) {
	r := NewRing(16)
	for i := 0; i < 4; i++ {
		r.Add(fmt.Sprintf("shard-%d", i))
	}
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("room:%d", i)
		assert.Equal(t, r.Get(key), r.Get(key))
	}
}

func TestKeysSpreadAcrossNodes(t *testing.T) {
	r := NewRing(DefaultReplicas)
	for i := 0; i < 4; i++ {
		r.Add(fmt.Sprintf("shard-%d", i))
	}
	seen := map[string]int{}
	for i := 0; i < 1000; i++ {
		seen[r.Get(fmt.Sprintf("room:%d", i))]++
	}
	assert.Len(t, seen, 4)
}

func TestRemoveOnlyMovesOwnedKeys(t *testing.T) {
	r := NewRing(DefaultReplicas)
	for i := 0; i < 3; i++ {
		r.Add(fmt.Sprintf("shard-%d", i))
	}
	before := map[string]string{}
	for i := 0; i < 500; i++ {
		k := fmt.Sprintf("room:%d", i)
		before[k] = r.Get(k)
	}

	r.Remove("shard-1")
	for k, owner := range before {
		got := r.Get(k)
		assert.NotEqual(t, "shard-1", got)
		if owner != "shard-1" {
			assert.Equal(t, owner, got, k)
		}
	}
}
