package metrics

const (
	// LabelMethod 被拦截方法的标识，形如 "orders.Service.Get"
	LabelMethod = "method"
	// LabelPolicy 策略类型
	LabelPolicy = "policy"
	// LabelOutcome 调用结果
	LabelOutcome = "outcome"
	// LabelReason 统计更新原因
	LabelReason = "reason"
	// LabelState 熔断器状态
	LabelState = "state"
)

const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
	OutcomeSkipped  = "skipped"
)

// Outcome 将调用返回的错误映射为结果标签
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return OutcomeError
}
