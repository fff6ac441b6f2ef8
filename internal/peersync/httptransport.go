package peersync

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/lschandler81/Push365-sub000/internal/logutil"
)

// 设备鉴权使用的请求头
const (
	HeaderDeviceName  = "X-Device-Name"
	HeaderDeviceToken = "X-Device-Token"
)

const defaultProbeInterval = 15 * time.Second

// HTTPTransport 是副设备指向主设备的 HTTP 传输：
// 即时层向同步接口 POST 信封并把应答交给回调；
// 持久层在发送失败时写入落盘队列，由后台探测循环在
// 主设备恢复可达后按顺序补发。
type HTTPTransport struct {
	mu        sync.Mutex
	client    *retryablehttp.Client
	baseURL   string
	device    string
	token     string
	outbox    *DurableQueue
	reachable bool
	reachFns  []func(bool)
	inbound   func(data []byte, reply func([]byte))
	stop      chan struct{}
	interval  time.Duration
}

// NewHTTPTransport 构造 HTTP 传输。outbox 可为 nil，此时持久投递直接失败回退为即时投递。
func NewHTTPTransport(baseURL, device, token string, outbox *DurableQueue) *HTTPTransport {
	client := retryablehttp.NewClient()
	client.Logger = log.New(io.Discard, "", 0)
	client.RetryMax = 3
	client.HTTPClient.Timeout = 10 * time.Second

	return &HTTPTransport{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		device:   device,
		token:    token,
		outbox:   outbox,
		interval: defaultProbeInterval,
	}
}

// WithProbeInterval 调整探测周期，主要面向测试场景。
func (t *HTTPTransport) WithProbeInterval(d time.Duration) *HTTPTransport {
	if d > 0 {
		t.interval = d
	}
	return t
}

// Send 即时投递一条消息，应答体（若有）交给 reply。
// 任何网络错误都折叠为 ErrUnreachable 并把链路标记为断开。
func (t *HTTPTransport) Send(data []byte, reply func([]byte)) error {
	req, err := retryablehttp.NewRequest(http.MethodPost, t.baseURL+"/api/sync/message", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderDeviceName, t.device)
	req.Header.Set(HeaderDeviceToken, t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		t.setReachable(false)
		return ErrUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		t.setReachable(false)
		return ErrUnreachable
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(body) > 0 && reply != nil {
		reply(body)
	}

	t.setReachable(true)
	return nil
}

// SendDurable 持久投递：先尝试即时通道，失败时落盘排队，
// 由探测循环在连通恢复后补发。
func (t *HTTPTransport) SendDurable(data []byte) error {
	if err := t.Send(data, nil); err == nil {
		return nil
	}
	if t.outbox == nil {
		return ErrUnreachable
	}
	return t.outbox.Append(data)
}

// Reachable 返回最近一次探测/发送得到的连通状态。
func (t *HTTPTransport) Reachable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reachable
}

// OnReachabilityChange 注册连通性变化回调。
func (t *HTTPTransport) OnReachabilityChange(fn func(bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reachFns = append(t.reachFns, fn)
}

// OnInbound 注册入站处理函数。HTTP 形态下主设备无法主动推送，
// 入站消息只会以应答形式出现，此处保留注册以满足传输契约。
func (t *HTTPTransport) OnInbound(fn func(data []byte, reply func([]byte))) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbound = fn
}

// Start 启动后台可达性探测循环。
func (t *HTTPTransport) Start() {
	t.mu.Lock()
	if t.stop != nil {
		t.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.probe()
			}
		}
	}()
}

// Stop 停止探测循环。
func (t *HTTPTransport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *HTTPTransport) probe() {
	req, err := retryablehttp.NewRequest(http.MethodGet, t.baseURL+"/ping", nil)
	if err != nil {
		return
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.setReachable(false)
		return
	}
	resp.Body.Close()

	if resp.StatusCode < 400 {
		t.flushOutbox()
		t.setReachable(true)
	}
}

func (t *HTTPTransport) flushOutbox() {
	if t.outbox == nil {
		return
	}
	err := t.outbox.Drain(func(data []byte) error {
		return t.Send(data, nil)
	})
	if err != nil {
		logutil.Log.WithError(err).Debug("outbox flush interrupted")
	}
}

func (t *HTTPTransport) setReachable(reachable bool) {
	t.mu.Lock()
	changed := t.reachable != reachable
	t.reachable = reachable
	fns := make([]func(bool), len(t.reachFns))
	copy(fns, t.reachFns)
	t.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range fns {
		fn(reachable)
	}
}
