package validation

import (
	"errors"

	"katydid-common-validation/pkg/validation/result"
)

var (
	// ErrNilTarget 被验证对象为 nil
	ErrNilTarget = errors.New("validation target cannot be nil")

	// ErrNilEngine 引擎为 nil
	ErrNilEngine = errors.New("validation engine cannot be nil")

	// ErrNilValidator 注册的验证器为 nil
	ErrNilValidator = errors.New("validator cannot be nil")

	// ErrNilDescriptor 类型描述为 nil
	ErrNilDescriptor = errors.New("type descriptor cannot be nil")

	// ErrNilContext 验证上下文为 nil
	ErrNilContext = result.ErrNilContext

	// ErrEmptyProperty 属性名为空
	ErrEmptyProperty = result.ErrEmptyProperty
)
