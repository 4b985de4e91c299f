// Package pagination 基于 keyset（非 offset）的游标分页。
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/d60-Lab/geofeed/pkg/errs"
)

// Page 统一分页结果：Data 永远存在（可为空切片），不存在「裸列表」形态
type Page[T any] struct {
	Data   []T    `json:"data"`
	Paging Paging `json:"paging"`
}

// Paging 游标；Next 为空表示没有下一页
type Paging struct {
	Next string `json:"next,omitempty"`
}

// Cursor 排序键快照：与排序字段 (popularity DESC, id DESC) 一一对应
type Cursor struct {
	Popularity float64
	ID         string
}

// Encode 序列化为不透明游标
func (c Cursor) Encode() string {
	raw := strconv.FormatFloat(c.Popularity, 'g', -1, 64) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode 解析游标；非法游标按参数错误处理
func Decode(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, errs.InvalidArgumentf("bad cursor: %v", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, errs.InvalidArgumentf("bad cursor format")
	}
	pop, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: bad cursor popularity", errs.ErrInvalidArgument)
	}
	return Cursor{Popularity: pop, ID: parts[1]}, nil
}
