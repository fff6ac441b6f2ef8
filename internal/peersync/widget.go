package peersync

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/peterbourgon/diskv/v3"
)

const widgetStateKey = "daystate"

// WidgetStore 把权威快照写入小组件渲染进程可读的共享键值存储，
// 并在每次写入后触发重渲染信号（由宿主注册的回调代表）。
type WidgetStore struct {
	mu      sync.Mutex
	d       *diskv.Diskv
	refresh func()
}

// NewWidgetStore 在 basePath 下打开小组件快照存储。
func NewWidgetStore(basePath string) *WidgetStore {
	return &WidgetStore{d: diskv.New(diskv.Options{
		BasePath:     basePath,
		CacheSizeMax: 64 * 1024,
	})}
}

// OnRefresh 注册写入后的重渲染回调。
func (w *WidgetStore) OnRefresh(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refresh = fn
}

// Write 覆盖写入最新快照并请求重渲染。
func (w *WidgetStore) Write(state DayState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal widget state: %w", err)
	}

	w.mu.Lock()
	refresh := w.refresh
	if err := w.d.Write(widgetStateKey, data); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("write widget state: %w", err)
	}
	w.mu.Unlock()

	if refresh != nil {
		refresh()
	}
	return nil
}

// Read 读取最新快照，不存在或损坏时返回 ok=false。
func (w *WidgetStore) Read() (DayState, bool) {
	w.mu.Lock()
	data, err := w.d.Read(widgetStateKey)
	w.mu.Unlock()
	if err != nil {
		return DayState{}, false
	}

	var state DayState
	if err := json.Unmarshal(data, &state); err != nil {
		return DayState{}, false
	}
	return state, true
}
