package service

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// stripedMutex 按 key 分片加锁，不同分片之间互不阻塞
type stripedMutex struct {
	locks [shardCount]sync.Mutex
}

func (s *stripedMutex) forID(id uint) *sync.Mutex {
	return &s.locks[id%shardCount]
}

func (s *stripedMutex) forKey(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%shardCount]
}
