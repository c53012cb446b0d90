package shardstore

import (
	"hash/crc32"
	"sort"
	"strconv"
	"sync"
)

// HashFunc 定义哈希函数类型
type HashFunc func(data []byte) uint32

// defaultReplicas 默认虚拟节点数量
const defaultReplicas = 100

// Ring 一致性哈希环
type Ring struct {
	hashFunc HashFunc

	// 每个物理节点对应的虚拟节点数量
	replicas int

	// 已排序的哈希值
	sortedHashes []uint32

	// 哈希值到节点的映射
	hashMap map[uint32]string

	weights map[string]int

	// 节点到其哈希值的映射，用于删除
	nodeHashes map[string][]uint32

	mu sync.RWMutex
}

// NewRing 创建一致性哈希环，fn 为空时使用 crc32
func NewRing(replicas int, fn HashFunc) *Ring {
	if replicas <= 0 {
		replicas = defaultReplicas
	}
	if fn == nil {
		fn = crc32.ChecksumIEEE
	}
	return &Ring{
		hashFunc:   fn,
		replicas:   replicas,
		hashMap:    make(map[uint32]string),
		weights:    make(map[string]int),
		nodeHashes: make(map[string][]uint32),
	}
}

// Add 添加节点，weight 决定虚拟节点数量的倍数
// 节点已存在时按新权重重建
func (r *Ring) Add(node string, weight int) {
	if weight <= 0 {
		weight = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.weights[node]; ok {
		r.removeLocked(node)
	}
	r.weights[node] = weight

	hashes := make([]uint32, 0, r.replicas*weight)
	for i := 0; i < r.replicas*weight; i++ {
		hash := r.hashFunc([]byte(node + ":" + strconv.Itoa(i)))
		// 哈希冲突时保留先加入的节点
		if _, taken := r.hashMap[hash]; taken {
			continue
		}
		r.sortedHashes = append(r.sortedHashes, hash)
		r.hashMap[hash] = node
		hashes = append(hashes, hash)
	}
	r.nodeHashes[node] = hashes

	sort.Slice(r.sortedHashes, func(i, j int) bool {
		return r.sortedHashes[i] < r.sortedHashes[j]
	})
}

// Remove 移除节点
func (r *Ring) Remove(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(node)
}

func (r *Ring) removeLocked(node string) {
	hashes, ok := r.nodeHashes[node]
	if !ok {
		return
	}

	hashSet := make(map[uint32]struct{}, len(hashes))
	for _, hash := range hashes {
		delete(r.hashMap, hash)
		hashSet[hash] = struct{}{}
	}

	kept := make([]uint32, 0, len(r.sortedHashes)-len(hashSet))
	for _, hash := range r.sortedHashes {
		if _, gone := hashSet[hash]; !gone {
			kept = append(kept, hash)
		}
	}
	r.sortedHashes = kept

	delete(r.weights, node)
	delete(r.nodeHashes, node)
}

// Get 返回 key 所在的节点，环为空时返回空字符串
func (r *Ring) Get(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sortedHashes) == 0 {
		return ""
	}
	idx := r.search(r.hashFunc([]byte(key)))
	return r.hashMap[r.sortedHashes[idx]]
}

// Nodes 返回所有节点
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]string, 0, len(r.weights))
	for node := range r.weights {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

// search 二分查找第一个大于等于 hash 的位置，越过末尾时回到环首
func (r *Ring) search(hash uint32) int {
	n := len(r.sortedHashes)
	idx := sort.Search(n, func(i int) bool {
		return r.sortedHashes[i] >= hash
	})
	if idx == n {
		idx = 0
	}
	return idx
}
