package intercept

// Verdict 策略对一次调用的裁决
type Verdict int

const (
	// Proceed 调用正常结束或失败被吞掉
	Proceed Verdict = iota
	// Rejected 策略拒绝执行真实方法
	Rejected
	// Failed 调用失败，错误需要向上传播
	Failed
)

func (v Verdict) String() string {
	switch v {
	case Proceed:
		return "proceed"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome 策略内部使用的带标签结果，在调用边界转换为 error
type Outcome struct {
	Verdict Verdict
	Err     error
}

// Proceeded 正常结束
func Proceeded() Outcome { return Outcome{Verdict: Proceed} }

// Reject 拒绝执行，err 为空时调用方看不到失败
func Reject(err error) Outcome { return Outcome{Verdict: Rejected, Err: err} }

// Fail 调用失败
func Fail(err error) Outcome { return Outcome{Verdict: Failed, Err: err} }

// Error 返回应向调用方传播的错误
func (o Outcome) Error() error {
	if o.Verdict == Proceed {
		return nil
	}
	return o.Err
}
