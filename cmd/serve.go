package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/lschandler81/Push365-sub000/internal/config"
	"github.com/lschandler81/Push365-sub000/internal/db"
	"github.com/lschandler81/Push365-sub000/internal/handler"
	"github.com/lschandler81/Push365-sub000/internal/logutil"
	"github.com/lschandler81/Push365-sub000/internal/peersync"
	"github.com/lschandler81/Push365-sub000/internal/router"
	"github.com/lschandler81/Push365-sub000/internal/service"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "以主设备身份运行 HTTP 服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		gin.SetMode(cfg.GinMode)

		// 初始化数据库
		if err := db.Init(cfg.DatabasePath); err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}

		// 注册副设备凭据（令牌仅保存 bcrypt 散列）
		if cfg.DeviceToken != "" {
			if err := db.EnsureDevice(cfg.DeviceName, db.DeviceRoleWatch, cfg.DeviceToken); err != nil {
				return fmt.Errorf("register device: %w", err)
			}
		} else {
			logutil.Log.Warn("DEVICE_TOKEN not set, sync endpoints will reject all devices")
		}

		loc := cfg.Location()
		progress := service.NewProgressService(db.DB, loc)
		analytics := service.NewAnalyticsService(db.DB, loc)

		// 主角色的推送通道。配置了 PEER_URL 时权威快照直接推给
		// 对端的同步接口，失败落入持久发件箱由探测循环补发；
		// 否则落盘假脱机，由副设备通过应答/拉取收敛。
		var transport peersync.Transport
		if cfg.PeerURL != "" {
			outbox, err := peersync.NewDurableQueue(filepath.Join(cfg.DataDir, "outbox"))
			if err != nil {
				return fmt.Errorf("open outbox queue: %w", err)
			}
			ht := peersync.NewHTTPTransport(cfg.PeerURL, cfg.DeviceName, cfg.DeviceToken, outbox)
			ht.Start()
			defer ht.Stop()
			transport = ht
		} else {
			spool, err := peersync.NewDurableQueue(filepath.Join(cfg.DataDir, "spool"))
			if err != nil {
				return fmt.Errorf("open spool queue: %w", err)
			}
			transport = peersync.NewSpoolTransport(spool)
		}

		widget := peersync.NewWidgetStore(filepath.Join(cfg.DataDir, "widget"))
		primary := peersync.NewPrimary(progress, transport, widget)

		api := handler.NewAPI(progress, analytics, primary)
		r := router.SetupRouter(api)

		logutil.Log.WithField("addr", cfg.ListenAddr).Info("starting server")
		return r.Run(cfg.ListenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
