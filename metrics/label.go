package metrics

// Label 指标标签，用于为指标添加维度信息
//
// 避免高基数标签：方法标识是稳定的低基数值，调用 ID、参数值则不应作为标签。
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数，创建一个 Label 实例
//
//	counter.Inc(ctx, metrics.L("method", "orders.Service.Get"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
