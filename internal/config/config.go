package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr   string
	DatabasePath string
	DataDir      string
	Timezone     string
	GinMode      string
	LogLevel     string
	DeviceName   string
	DeviceToken  string
	PrimaryURL   string
	PeerURL      string
}

// Load 通过 viper 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	viper.AutomaticEnv()

	viper.SetDefault("listen_addr", ":8090")
	viper.SetDefault("database_path", "push365.db")
	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("timezone", "")
	viper.SetDefault("gin_mode", "release")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("device_name", "watch")
	viper.SetDefault("device_token", "")
	viper.SetDefault("primary_url", "http://127.0.0.1:8090")
	viper.SetDefault("peer_url", "")

	return AppConfig{
		ListenAddr:   strings.TrimSpace(viper.GetString("listen_addr")),
		DatabasePath: strings.TrimSpace(viper.GetString("database_path")),
		DataDir:      strings.TrimSpace(viper.GetString("data_dir")),
		Timezone:     strings.TrimSpace(viper.GetString("timezone")),
		GinMode:      strings.TrimSpace(viper.GetString("gin_mode")),
		LogLevel:     strings.TrimSpace(viper.GetString("log_level")),
		DeviceName:   strings.TrimSpace(viper.GetString("device_name")),
		DeviceToken:  strings.TrimSpace(viper.GetString("device_token")),
		PrimaryURL:   strings.TrimSpace(viper.GetString("primary_url")),
		PeerURL:      strings.TrimSpace(viper.GetString("peer_url")),
	}
}

// Location 解析配置的时区名，为空或无法解析时回退到本地时区。
// 日历日以主设备的这个时区为准。
func (c AppConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
