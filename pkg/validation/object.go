package validation

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"katydid-common-validation/pkg/idgen"
	"katydid-common-validation/pkg/metrics"
	"katydid-common-validation/pkg/observable"
	"katydid-common-validation/pkg/validation/annotation"
	"katydid-common-validation/pkg/validation/notify"
	"katydid-common-validation/pkg/validation/result"
	"katydid-common-validation/pkg/validation/suspension"
)

// 验证状态机
const (
	StateIdle       = "idle"
	StateValidating = "validating"

	eventBegin  = "begin"
	eventFinish = "finish"
)

// 框架内部属性名，变更时不触发验证，也不参与声明式验证
const (
	PropertyHasErrors             = notify.PropertyHasErrors
	PropertyHasWarnings           = notify.PropertyHasWarnings
	PropertyIsValidated           = "IsValidated"
	PropertyHideValidationResults = "HideValidationResults"
	PropertySuspendValidation     = "SuspendValidation"
	PropertyAutoValidate          = "AutoValidate"
	PropertyLean                  = "Lean"
	PropertyValidationContext     = "ValidationContext"
)

var internalProperties = []string{
	PropertyHasErrors,
	PropertyHasWarnings,
	PropertyIsValidated,
	PropertyHideValidationResults,
	PropertySuspendValidation,
	PropertyAutoValidate,
	PropertyLean,
	PropertyValidationContext,
}

// InternalProperties 框架内部属性名列表
// 属性变更来源可以用它过滤不需要转发的变更
func InternalProperties() []string {
	out := make([]string, len(internalProperties))
	copy(out, internalProperties)
	return out
}

func isInternalProperty(name string) bool {
	for _, p := range internalProperties {
		if p == name {
			return true
		}
	}
	return false
}

// ObjectOption 实例选项
type ObjectOption func(*objectOptions)

type objectOptions struct {
	descriptor    *annotation.TypeDescriptor
	hasDescriptor bool
	flags         *Flags
	bus           *notify.Bus
}

// WithDescriptor 使用显式的类型描述，不再反射结构体
func WithDescriptor(td *annotation.TypeDescriptor) ObjectOption {
	return func(o *objectOptions) {
		o.descriptor = td
		o.hasDescriptor = true
	}
}

// WithFlags 覆盖引擎的默认实例标志
func WithFlags(flags Flags) ObjectOption {
	return func(o *objectOptions) {
		o.flags = &flags
	}
}

// WithBus 使用外部事件总线，多个实例可以共享同一个订阅列表
func WithBus(bus *notify.Bus) ObjectOption {
	return func(o *objectOptions) {
		o.bus = bus
	}
}

// Object 单个模型实例的验证状态
//
// 状态：idle / validating，挂起是守卫条件而非独立状态。
// 并发：validating 状态本身就是重入保护，同一时刻最多一个验证过程；
// mu 只保护结果同步与“已验证”标记，钩子和通知都在锁外执行，
// 因此钩子或观察者可以安全地回调本对象。
type Object struct {
	engine     *Engine
	target     any
	descriptor *annotation.TypeDescriptor
	id         int64
	logger     *zap.Logger

	machine     *fsm.FSM
	suspension  *suspension.Counter
	annotations *annotation.InstanceState
	notifier    *notify.Notifier

	mu      sync.Mutex
	results *result.Context

	// 属性每变更一次 generation 加一；validatedGen 等于 generation 表示已验证
	generation   atomic.Uint64
	validatedGen atomic.Uint64

	flags atomic.Uint32

	validatorOnce sync.Once
	validator     Validator
}

// Attach 为模型实例创建验证状态
// 没有显式类型描述时，由结构体字段与标签构建（每个类型只反射一次）
func (e *Engine) Attach(target any, opts ...ObjectOption) (*Object, error) {
	if e == nil {
		return nil, ErrNilEngine
	}
	if isNil(target) {
		return nil, ErrNilTarget
	}

	options := objectOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	td := options.descriptor
	if options.hasDescriptor && td == nil {
		return nil, ErrNilDescriptor
	}
	if td == nil {
		var err error
		if td, err = e.describer.Describe(target); err != nil {
			return nil, err
		}
	}
	e.registry.RegisterExclusions(td.Type(), internalProperties...)

	id, err := e.ids.NextID()
	if err != nil {
		return nil, err
	}

	flags := e.defaultFlags
	if options.flags != nil {
		flags = *options.flags
	}

	o := &Object{
		engine:      e,
		target:      target,
		descriptor:  td,
		id:          id,
		logger:      e.logger.With(zap.Int64("instance", id), zap.Stringer("type", td.Type())),
		annotations: annotation.NewInstanceState(),
		results:     result.NewContext(),
	}
	o.flags.Store(uint32(flags))
	o.generation.Store(1)

	bus := options.bus
	if bus == nil {
		bus = notify.NewBus(o.logger, e.metrics)
	}
	o.notifier = notify.NewNotifier(bus, id, e.metrics)
	o.suspension = suspension.NewCounter(func() error {
		return o.Validate(true)
	})
	o.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventBegin, Src: []string{StateIdle}, Dst: StateValidating},
			{Name: eventFinish, Src: []string{StateValidating}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				o.logger.Debug("validation state changed",
					zap.String("from", ev.Src),
					zap.String("to", ev.Dst))
			},
		},
	)

	if info, err := idgen.Parse(id); err == nil {
		o.logger.Debug("validation object attached",
			zap.Time("issued_at", info.Time()),
			zap.Int64("worker", info.WorkerID),
			zap.Int("properties", len(td.Names())))
	}
	return o, nil
}

// ID 实例ID
func (o *Object) ID() int64 {
	return o.id
}

// Target 被验证的模型
func (o *Object) Target() any {
	return o.target
}

// Descriptor 类型描述
func (o *Object) Descriptor() *annotation.TypeDescriptor {
	return o.descriptor
}

// State 当前状态机状态
func (o *Object) State() string {
	return o.machine.Current()
}

// Validate 执行验证，force 为 true 时忽略“已验证”标记并重新执行声明式验证
func (o *Object) Validate(force bool) error {
	return o.ValidateWithOptions(force, true)
}

// ValidateWithOptions 执行验证
//
// 挂起中或已在验证中时直接返回 nil，不改变任何状态。
// 验证器钩子返回的错误原样返回；无论成功与否都会回到 idle。
// 结果严重级别不合法时 panic（内部不变量破坏）。
func (o *Object) ValidateWithOptions(force, validateDeclarative bool) error {
	m := o.engine.metrics
	if o.Suspended() {
		m.Pass(metrics.PassSkippedSuspended)
		return nil
	}
	if err := o.machine.Event(context.Background(), eventBegin); err != nil {
		m.Pass(metrics.PassSkippedReentrant)
		return nil
	}
	defer func() {
		if err := o.machine.Event(context.Background(), eventFinish); err != nil {
			o.logger.Error("failed to leave validating state", zap.Error(err))
		}
	}()

	outcome, err := o.run(force, validateDeclarative)
	if err != nil {
		m.Pass(metrics.PassFailed)
		return err
	}
	m.Pass(outcome)
	return nil
}

func (o *Object) run(force, validateDeclarative bool) (string, error) {
	v := o.resolveValidator()

	if v != nil {
		if err := v.BeforeValidation(o.target, o.results.FieldResults(), o.results.BusinessRuleResults()); err != nil {
			return "", err
		}
	}
	o.notifier.Notify(notify.EventValidating)

	checker := o.engine.checker
	checker.CatchUp(o.annotations, o.descriptor, o.target)

	if force && validateDeclarative {
		for _, name := range o.descriptor.Names() {
			checker.Check(o.annotations, o.descriptor, o.target, name, false)
		}
	}

	outcome := metrics.PassUpToDate
	var (
		changes                []result.Change
		hadErrors, hadWarnings bool
	)
	if gen := o.generation.Load(); force || o.validatedGen.Load() != gen {
		next, err := o.collect(v)
		if err != nil {
			return "", err
		}

		o.mu.Lock()
		hadErrors, hadWarnings = o.results.HasErrors(), o.results.HasWarnings()
		o.validatedGen.Store(gen)
		changes, err = o.results.Synchronize(next)
		o.mu.Unlock()
		if err != nil {
			return "", err
		}
		outcome = metrics.PassCompleted
	}

	o.notifier.Notify(notify.EventValidated)

	if v != nil {
		if err := v.AfterValidation(o.target, o.results); err != nil {
			return "", err
		}
	}

	o.dispatch(changes, hadErrors, hadWarnings)
	return outcome, nil
}

// collect 计算一次完整的新结果
func (o *Object) collect(v Validator) (*result.Context, error) {
	target := o.target

	fields := result.NewFieldCollector()
	if v != nil {
		if err := v.BeforeValidateFields(target); err != nil {
			return nil, err
		}
	}
	o.notifier.Notify(notify.EventValidatingFields)
	if v != nil {
		if err := v.ValidateFields(target, fields); err != nil {
			return nil, err
		}
	}
	for _, failure := range o.annotations.Failures() {
		if err := fields.Add(failure); err != nil {
			return nil, err
		}
	}
	if checker, ok := target.(FieldRuleChecker); ok {
		checker.CheckFieldRules(fields)
	}
	o.notifier.Notify(notify.EventValidatedFields)
	if v != nil {
		if err := v.AfterValidateFields(target, fields.Results()); err != nil {
			return nil, err
		}
	}

	rules := result.NewBusinessRuleCollector()
	if v != nil {
		if err := v.BeforeValidateBusinessRules(target); err != nil {
			return nil, err
		}
	}
	o.notifier.Notify(notify.EventValidatingBusinessRules)
	if v != nil {
		if err := v.ValidateBusinessRules(target, rules); err != nil {
			return nil, err
		}
	}
	if checker, ok := target.(BusinessRuleChecker); ok {
		checker.CheckBusinessRules(rules)
	}
	o.notifier.Notify(notify.EventValidatedBusinessRules)
	if v != nil {
		if err := v.AfterValidateBusinessRules(target, rules.Results()); err != nil {
			return nil, err
		}
	}

	next := result.NewContext()
	for _, r := range fields.Results() {
		if err := next.AddFieldResult(r); err != nil {
			return nil, err
		}
	}
	for _, r := range rules.Results() {
		next.AddBusinessRuleResult(r)
	}

	if v != nil {
		if err := v.Validate(target, next); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// dispatch 把同步产生的变更转换为通知
// 每个 (属性, 严重级别) 只通知一次；业务规则变更合并为一次对象级通知；
// 聚合属性 HasWarnings / HasErrors 最后通知
func (o *Object) dispatch(changes []result.Change, hadErrors, hadWarnings bool) {
	if len(changes) == 0 || o.Flags().Contain(FlagHideValidationResults) {
		return
	}

	type key struct {
		property string
		severity result.Severity
	}
	notified := make(map[key]struct{}, len(changes))
	for _, c := range changes {
		k := key{property: c.Property(), severity: c.Severity().MustValid()}
		if _, ok := notified[k]; ok {
			continue
		}
		notified[k] = struct{}{}

		if k.severity == result.SeverityError {
			o.notifier.NotifyErrorsChanged(k.property, false)
		} else {
			o.notifier.NotifyWarningsChanged(k.property, false)
		}
	}

	if hadWarnings != o.results.HasWarnings() {
		o.notifier.NotifyPropertyChanged(PropertyHasWarnings)
	}
	if hadErrors != o.results.HasErrors() {
		o.notifier.NotifyPropertyChanged(PropertyHasErrors)
	}
}

// resolveValidator 每个实例只解析一次，未找到同样缓存
func (o *Object) resolveValidator() Validator {
	o.validatorOnce.Do(func() {
		if v, ok := o.engine.provider.ValidatorFor(reflect.TypeOf(o.target)); ok && !isNil(v) {
			o.validator = v
		}
	})
	return o.validator
}

// OnPropertyChanged 属性变更入口，由属性变更来源在每次修改后调用
//
// 框架内部属性直接忽略；其余属性标记为未验证。
// 正在通知中的属性不嵌套验证，只推迟到下一次验证时再检查；
// 否则启用自动验证时检查该属性并执行一次增量验证。
func (o *Object) OnPropertyChanged(property string) error {
	if property == "" {
		return ErrEmptyProperty
	}
	if isInternalProperty(property) {
		return nil
	}

	o.generation.Add(1)
	auto := o.Flags().Contain(FlagAutoValidate)
	if o.notifier.InFlight(property) {
		if auto {
			o.annotations.Defer(property)
		}
		return nil
	}
	if !auto {
		return nil
	}

	o.engine.checker.Check(o.annotations, o.descriptor, o.target, property, o.Suspended())
	return o.Validate(false)
}

// SuspendValidations 进入挂起作用域，句柄必须释放（通常 defer h.Close()）
// 最外层释放且 validateOnResume 为 true 时执行一次强制验证
func (o *Object) SuspendValidations(validateOnResume bool) *suspension.Handle {
	return o.suspension.Enter(validateOnResume)
}

// Suspended 验证是否被挂起（作用域、实例标志、轻量实例或全局挂起）
func (o *Object) Suspended() bool {
	return o.suspension.Active() || o.Flags().SkipsValidation() || o.engine.SuspendedAll()
}

// IsValidated 当前属性状态是否已验证
func (o *Object) IsValidated() bool {
	return o.validatedGen.Load() == o.generation.Load()
}

// Flags 当前实例标志
func (o *Object) Flags() Flags {
	return Flags(o.flags.Load())
}

// SetSuspendValidation 设置实例级挂起，取消时不自动验证
func (o *Object) SetSuspendValidation(suspend bool) {
	o.setFlag(FlagSuspendValidation, suspend)
}

// SetLean 设置轻量实例
func (o *Object) SetLean(lean bool) {
	o.setFlag(FlagLean, lean)
}

// SetAutoValidate 设置属性变更后是否自动验证
func (o *Object) SetAutoValidate(auto bool) {
	o.setFlag(FlagAutoValidate, auto)
}

// SetHideValidationResults 隐藏或显示验证结果
// 切换时通知所有持有结果的属性、对象级结果与聚合属性
func (o *Object) SetHideValidationResults(hide bool) {
	if !o.setFlag(FlagHideValidationResults, hide) {
		return
	}

	errorProps, warningProps := propertiesWithResults(o.results.FieldResults())
	for _, p := range errorProps {
		o.notifier.NotifyErrorsChanged(p, false)
	}
	for _, p := range warningProps {
		o.notifier.NotifyWarningsChanged(p, false)
	}
	o.notifier.NotifyErrorsChanged("", true)
	o.notifier.NotifyWarningsChanged("", true)
	o.notifier.NotifyPropertyChanged(PropertyHideValidationResults)
}

func (o *Object) setFlag(flag Flags, on bool) bool {
	for {
		old := o.flags.Load()
		next := uint32(Flags(old).With(flag, on))
		if old == next {
			return false
		}
		if o.flags.CompareAndSwap(old, next) {
			return true
		}
	}
}

func (o *Object) hidden() bool {
	return o.Flags().Contain(FlagHideValidationResults)
}

// HasErrors 是否存在错误
func (o *Object) HasErrors() bool {
	return !o.hidden() && o.results.HasErrors()
}

// HasWarnings 是否存在警告
func (o *Object) HasWarnings() bool {
	return !o.hidden() && o.results.HasWarnings()
}

// FieldErrors 属性的字段错误，property 为空时返回所有字段错误
func (o *Object) FieldErrors(property string) []result.FieldResult {
	if o.hidden() {
		return []result.FieldResult{}
	}
	return o.results.FieldResultsWith(property, result.SeverityError)
}

// FieldWarnings 属性的字段警告，property 为空时返回所有字段警告
func (o *Object) FieldWarnings(property string) []result.FieldResult {
	if o.hidden() {
		return []result.FieldResult{}
	}
	return o.results.FieldResultsWith(property, result.SeverityWarning)
}

// BusinessRuleErrors 业务规则错误
func (o *Object) BusinessRuleErrors() []result.BusinessRuleResult {
	if o.hidden() {
		return []result.BusinessRuleResult{}
	}
	return o.results.BusinessRuleResultsWith(result.SeverityError)
}

// BusinessRuleWarnings 业务规则警告
func (o *Object) BusinessRuleWarnings() []result.BusinessRuleResult {
	if o.hidden() {
		return []result.BusinessRuleResult{}
	}
	return o.results.BusinessRuleResultsWith(result.SeverityWarning)
}

// ErrorText 错误文本，每行一条；property 为空时为对象级（业务规则）错误
func (o *Object) ErrorText(property string) string {
	if property == "" {
		return result.JoinMessages(result.BusinessRuleMessages(o.BusinessRuleErrors()))
	}
	return result.JoinMessages(result.FieldMessages(o.FieldErrors(property)))
}

// WarningText 警告文本，每行一条；property 为空时为对象级（业务规则）警告
func (o *Object) WarningText(property string) string {
	if property == "" {
		return result.JoinMessages(result.BusinessRuleMessages(o.BusinessRuleWarnings()))
	}
	return result.JoinMessages(result.FieldMessages(o.FieldWarnings(property)))
}

// ValidationContext 持久的验证上下文，每次验证原地同步
// 不受 HideValidationResults 影响
func (o *Object) ValidationContext() *result.Context {
	return o.results
}

// ValidationSummary 当前结果快照
func (o *Object) ValidationSummary() result.Summary {
	if o.hidden() {
		return result.Summary{}
	}
	return result.Summarize(o.results)
}

// IgnoredProperties 当前类型被排除在声明式验证之外的属性
func (o *Object) IgnoredProperties() []string {
	return o.engine.registry.Ignored(o.descriptor.Type())
}

// Subscribe 订阅原始事件，返回取消订阅函数
func (o *Object) Subscribe(listener notify.Listener) func() {
	return o.notifier.Bus().Subscribe(listener)
}

// OnErrorsChanged 订阅错误变化，property 为空表示对象级
func (o *Object) OnErrorsChanged(fn func(property string)) func() {
	return o.subscribeProperty(fn, notify.EventErrorsChanged)
}

// OnWarningsChanged 订阅警告变化，property 为空表示对象级
func (o *Object) OnWarningsChanged(fn func(property string)) func() {
	return o.subscribeProperty(fn, notify.EventWarningsChanged)
}

// OnStateChanged 订阅聚合属性变化（HasErrors / HasWarnings / HideValidationResults）
func (o *Object) OnStateChanged(fn func(property string)) func() {
	return o.subscribeProperty(fn, notify.EventPropertyChanged)
}

// OnValidating 订阅验证开始
func (o *Object) OnValidating(fn func()) func() {
	return o.subscribeProperty(func(string) { fn() }, notify.EventValidating)
}

// OnValidated 订阅验证结束
func (o *Object) OnValidated(fn func()) func() {
	return o.subscribeProperty(func(string) { fn() }, notify.EventValidated)
}

func (o *Object) subscribeProperty(fn func(property string), eventType notify.EventType) func() {
	id := o.id
	return o.Subscribe(notify.Listen(func(e notify.Event) {
		// 共享总线时只转发本实例的事件
		if e.InstanceID == id {
			fn(e.Property)
		}
	}, eventType))
}

func propertiesWithResults(fields []result.FieldResult) (errorProps, warningProps []string) {
	seenErr := make(map[string]struct{})
	seenWarn := make(map[string]struct{})
	for _, f := range fields {
		switch f.Severity.MustValid() {
		case result.SeverityError:
			if _, ok := seenErr[f.Property]; !ok {
				seenErr[f.Property] = struct{}{}
				errorProps = append(errorProps, f.Property)
			}
		case result.SeverityWarning:
			if _, ok := seenWarn[f.Property]; !ok {
				seenWarn[f.Property] = struct{}{}
				warningProps = append(warningProps, f.Property)
			}
		}
	}
	return errorProps, warningProps
}

func isNil(target any) bool {
	if target == nil {
		return true
	}
	v := reflect.ValueOf(target)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// Bind 把属性存储的变更绑定到 OnPropertyChanged，返回解绑函数
func (o *Object) Bind(bag *observable.Bag) func() {
	if bag == nil {
		return func() {}
	}
	return bag.OnChange(o.OnPropertyChanged)
}
