package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/lschandler81/Push365-sub000/internal/config"
	"github.com/lschandler81/Push365-sub000/internal/peersync"
)

// newSecondaryClient 以副设备身份连接主设备。
// 先请求一次快照：成功会把链路标记为可达并顺带冲刷上次
// 离线时积压的动作；失败则继续用本地投影与待发队列。
func newSecondaryClient(cfg config.AppConfig) (*peersync.Secondary, error) {
	pending, err := peersync.NewDurableQueue(filepath.Join(cfg.DataDir, "pending"))
	if err != nil {
		return nil, fmt.Errorf("open pending queue: %w", err)
	}

	transport := peersync.NewHTTPTransport(cfg.PrimaryURL, cfg.DeviceName, cfg.DeviceToken, nil)
	secondary := peersync.NewSecondary(transport, pending)
	secondary.RequestSnapshot()
	return secondary, nil
}

// printProjection 打印投影状态与积压数量。
func printProjection(secondary *peersync.Secondary) {
	state := secondary.Projection()
	if state.Timestamp.IsZero() {
		fmt.Println("no snapshot yet (primary unreachable, actions are queued)")
	} else {
		fmt.Printf("day %d: %d/%d done, %d remaining\n",
			state.DayNumber, state.Completed, state.Target, state.Remaining)
		if state.IsComplete {
			fmt.Println("today's target is complete")
		}
	}
	if n := secondary.PendingCount(); n > 0 {
		fmt.Printf("%d action(s) pending delivery\n", n)
	}
}
