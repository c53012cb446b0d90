package shardstore

import (
	"fmt"
	"hash/fnv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_AddRemove(t *testing.T) {
	r := NewRing(100, nil)
	assert.Equal(t, "", r.Get("key1"))

	r.Add("node1", 1)
	r.Add("node2", 1)
	r.Add("node3", 1)
	assert.Equal(t, []string{"node1", "node2", "node3"}, r.Nodes())

	r.Remove("node2")
	assert.Equal(t, []string{"node1", "node3"}, r.Nodes())

	// 删除不存在的节点
	r.Remove("non-existent-node")
	assert.Len(t, r.Nodes(), 2)

	for i := 0; i < 100; i++ {
		assert.NotEqual(t, "node2", r.Get(fmt.Sprintf("key%d", i)))
	}
}

// TestRing_Stable 测试移除节点只影响该节点上的 key
func TestRing_Stable(t *testing.T) {
	r := NewRing(100, nil)
	r.Add("a", 1)
	r.Add("b", 1)
	r.Add("c", 1)

	before := make(map[string]string)
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("ns:res%d:lock", i)
		before[key] = r.Get(key)
		assert.Equal(t, before[key], r.Get(key))
	}

	r.Remove("c")
	for key, node := range before {
		if node != "c" {
			assert.Equal(t, node, r.Get(key), key)
		}
	}
}

func TestRing_Weight(t *testing.T) {
	h := func(data []byte) uint32 {
		f := fnv.New32a()
		_, _ = f.Write(data)
		return f.Sum32()
	}
	r := NewRing(50, h)
	r.Add("heavy", 3)
	r.Add("light", 1)

	counts := make(map[string]int)
	for i := 0; i < 10000; i++ {
		counts[r.Get(fmt.Sprintf("key-%d", i))]++
	}
	assert.Greater(t, counts["heavy"], counts["light"])

	// 重新添加会按新权重重建
	r.Add("heavy", 1)
	assert.Len(t, r.nodeHashes["heavy"], 50)
}

func TestRing_Concurrent(t *testing.T) {
	r := NewRing(10, nil)
	r.Add("base", 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			node := fmt.Sprintf("node%d", n)
			for j := 0; j < 50; j++ {
				r.Add(node, 1)
				assert.NotEmpty(t, r.Get(fmt.Sprintf("k%d", j)))
				r.Remove(node)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, []string{"base"}, r.Nodes())
}
