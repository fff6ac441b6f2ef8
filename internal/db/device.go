package db

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	// DeviceRoleWatch 表示可提交动作的手表副设备。
	DeviceRoleWatch = "watch"
	// DeviceRoleWidget 表示只读的桌面小组件。
	DeviceRoleWidget = "widget"
)

// Device 定义已配对的副设备。
// TokenHash 存储 bcrypt 哈希后的设备令牌，接口鉴权时比对。
type Device struct {
	gorm.Model
	Name       string `gorm:"unique;not null"`
	Role       string `gorm:"size:20"`
	TokenHash  string `gorm:"not null"`
	LastSeenAt *time.Time
}

// TableName 自定义表名以保持命名一致。
func (Device) TableName() string {
	return "devices"
}

// EnsureDevice 存在性检查：若提供的名称与令牌均非空且不存在对应设备，则创建一条 bcrypt 哈希的设备记录。
func EnsureDevice(name, role, token string) error {
	trimmedName := strings.TrimSpace(name)
	trimmedToken := strings.TrimSpace(token)
	if trimmedName == "" || trimmedToken == "" {
		return nil
	}

	if DB == nil {
		return errors.New("database not initialized")
	}

	var existing Device
	if err := DB.Where("name = ?", trimmedName).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(trimmedToken), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		return DB.Create(&Device{Name: trimmedName, Role: role, TokenHash: string(hashed)}).Error
	}

	return nil
}

// VerifyDeviceToken 校验名称对应设备的令牌，成功时刷新 LastSeenAt。
func VerifyDeviceToken(name, token string) (*Device, error) {
	if DB == nil {
		return nil, errors.New("database not initialized")
	}

	var device Device
	if err := DB.Where("name = ?", strings.TrimSpace(name)).First(&device).Error; err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(device.TokenHash), []byte(token)); err != nil {
		return nil, err
	}

	now := time.Now()
	device.LastSeenAt = &now
	if err := DB.Save(&device).Error; err != nil {
		return nil, err
	}

	return &device, nil
}
