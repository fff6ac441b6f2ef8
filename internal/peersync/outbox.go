package peersync

import (
	"fmt"
	"sort"
	"sync"

	"github.com/peterbourgon/diskv/v3"
)

// DurableQueue 是落盘的先进先出消息队列，用于存储转发：
// 副设备的待发动作与主设备的待推快照都经由它在断连期间排队，
// 进程重启后队列内容依然存在。
type DurableQueue struct {
	mu   sync.Mutex
	d    *diskv.Diskv
	next uint64
}

// NewDurableQueue 在 basePath 下打开（或创建）一个队列。
func NewDurableQueue(basePath string) (*DurableQueue, error) {
	q := &DurableQueue{d: diskv.New(diskv.Options{
		BasePath:     basePath,
		CacheSizeMax: 1024 * 1024, // 1MB
	})}

	// 从已有键恢复单调序号，保证重启后仍按原顺序追加
	for _, key := range q.keys() {
		var idx uint64
		if _, err := fmt.Sscanf(key, "%020d", &idx); err == nil && idx >= q.next {
			q.next = idx + 1
		}
	}

	return q, nil
}

// Append 在队尾追加一条消息并立即落盘。
func (q *DurableQueue) Append(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := fmt.Sprintf("%020d", q.next)
	if err := q.d.Write(key, data); err != nil {
		return fmt.Errorf("append durable queue: %w", err)
	}
	q.next++
	return nil
}

// Drain 按入队顺序逐条回调 fn，成功即删除；fn 返回错误时停止，
// 剩余消息保留原顺序等待下次冲刷。
func (q *DurableQueue) Drain(fn func(data []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, key := range q.keys() {
		data, err := q.d.Read(key)
		if err != nil {
			return fmt.Errorf("read durable queue %s: %w", key, err)
		}
		if err := fn(data); err != nil {
			return err
		}
		if err := q.d.Erase(key); err != nil {
			return fmt.Errorf("erase durable queue %s: %w", key, err)
		}
	}
	return nil
}

// Len 返回当前排队的消息数。
func (q *DurableQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys())
}

func (q *DurableQueue) keys() []string {
	keys := make([]string, 0)
	for key := range q.d.Keys(nil) {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
