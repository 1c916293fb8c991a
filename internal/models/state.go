package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Role 是一个权限标签
type Role string

const (
	RoleAdmin Role = "ADMIN" // 部署者默认持有, 唯一可以授予/撤销角色的权限
	RoleBot   Role = "BOT"   // 允许调用 buy/sell 的自动化机器人
)

// Valid reports whether r is one of the known role tags.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleBot
}

// Principal 是一个外部账户标识
type Principal = common.Address

// EntrypointState 定义了需要持久化的所有关键数据
type EntrypointState struct {
	Version        int                  `json:"version"`          // 状态模型的版本号，用于未来迁移
	Config         TradeConfig          `json:"config"`           // 入口创建时的交易参数 (生命周期内不变)
	Roles          map[Role][]Principal `json:"roles"`            // 角色成员
	Trades         []TradeRecord        `json:"trades"`           // 最近的交易流水
	LastUpdateTime time.Time            `json:"last_update_time"` // 状态最后更新的时间戳
}

// CurrentStateVersion 是当前状态模型的版本
const CurrentStateVersion = 1
