package errs

import (
	"errors"
	"fmt"
)

// 错误分类：调用方据此决定重试/透传/忽略
var (
	// ErrInvalidArgument 参数非法（坐标越界、zoom<0 等），属调用方 bug，不重试
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound 引用的内容/用户已不存在
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey 唯一键冲突，幂等路径上视为 already exists，不算失败
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrStore 存储层瞬时故障，由外层调用方决定是否重试
	ErrStore = errors.New("store error")
)

// InvalidArgumentf 构造带上下文的参数错误
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }
func IsNotFound(err error) bool        { return errors.Is(err, ErrNotFound) }
func IsDuplicateKey(err error) bool    { return errors.Is(err, ErrDuplicateKey) }
