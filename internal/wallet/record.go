package wallet

import "context"

// TimestampLayout 是 created_at 字段使用的时间格式。
const TimestampLayout = "2006-01-02 15:04:05"

// Record 记录某个网络上智能体所使用的钱包。
type Record struct {
	Address   *string `json:"address"`
	NetworkID string  `json:"network_id"`
	CreatedAt string  `json:"created_at"`
}

// AddressValue 返回地址，未设置时返回空字符串。
func (r *Record) AddressValue() string {
	if r == nil || r.Address == nil {
		return ""
	}
	return *r.Address
}

// Store 定义钱包记录的持久化接口。
type Store interface {
	// Load 返回 networkID 对应的记录；不存在或无法解析时返回 nil, nil。
	Load(ctx context.Context, networkID string) (*Record, error)
	// Save 覆盖写入记录。
	Save(ctx context.Context, record Record) error
}
