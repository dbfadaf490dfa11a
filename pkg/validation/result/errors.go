package result

import "errors"

var (
	// ErrUnknownSeverity 严重级别不在 {Error, Warning} 之内，属于内部不变量破坏
	ErrUnknownSeverity = errors.New("unknown validation result severity")

	// ErrNilContext 同步目标上下文为 nil
	ErrNilContext = errors.New("validation context cannot be nil")

	// ErrEmptyProperty 字段结果缺少属性名
	ErrEmptyProperty = errors.New("field result property name cannot be empty")
)
