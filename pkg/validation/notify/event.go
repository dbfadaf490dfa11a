package notify

import "time"

// EventType 事件类型
type EventType int8

const (
	EventPropertyChanged         EventType = iota + 1 // 属性变更（含 HasErrors/HasWarnings 聚合属性）
	EventErrorsChanged                                // 某属性（或对象级）的错误发生变化
	EventWarningsChanged                              // 某属性（或对象级）的警告发生变化
	EventValidating                                   // 验证开始
	EventValidatingFields                             // 字段验证开始
	EventValidatedFields                              // 字段验证结束
	EventValidatingBusinessRules                      // 业务规则验证开始
	EventValidatedBusinessRules                       // 业务规则验证结束
	EventValidated                                    // 验证结束
)

// 聚合属性名
const (
	PropertyHasErrors   = "HasErrors"
	PropertyHasWarnings = "HasWarnings"
)

var eventNames = map[EventType]string{
	EventPropertyChanged:         "property_changed",
	EventErrorsChanged:           "errors_changed",
	EventWarningsChanged:         "warnings_changed",
	EventValidating:              "validating",
	EventValidatingFields:        "validating_fields",
	EventValidatedFields:         "validated_fields",
	EventValidatingBusinessRules: "validating_business_rules",
	EventValidatedBusinessRules:  "validated_business_rules",
	EventValidated:               "validated",
}

// String 事件名称
func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event 验证事件
// Property 为空表示对象级（业务规则范围）事件
type Event struct {
	Type       EventType
	Property   string
	InstanceID int64
	Timestamp  int64
}

// NewEvent 创建事件
func NewEvent(eventType EventType, instanceID int64, property string) Event {
	return Event{
		Type:       eventType,
		Property:   property,
		InstanceID: instanceID,
		Timestamp:  time.Now().UnixNano(),
	}
}

// ObjectLevel 是否为对象级事件
func (e Event) ObjectLevel() bool {
	return e.Property == ""
}
