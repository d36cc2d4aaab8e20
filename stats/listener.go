package stats

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/serializer"
)

// HeaderContentType 消息头中负载编码的键
const HeaderContentType = "Content-Type"

// Publisher 消息发布接口，*nats.Conn 满足该接口
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Message 发布到 NATS 的统计通知
type Message struct {
	Method   string   `json:"method" msgpack:"method"`
	Reason   string   `json:"reason" msgpack:"reason"`
	Elapsed  int64    `json:"elapsed_ns" msgpack:"elapsed_ns"`
	Snapshot Snapshot `json:"snapshot" msgpack:"snapshot"`
}

// NATSListener 返回把统计通知发布到 subject 的订阅者
//
// s 为 nil 时使用 JSON；发布失败只记录日志。
func NATSListener(pub Publisher, subject string, s serializer.Serializer, logger clog.Logger) Listener {
	if s == nil {
		s = serializer.JSONSerializer{}
	}
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.WithNamespace("stats", "nats")

	return func(ctx context.Context, u Update) {
		data, err := s.Marshal(Message{
			Method:   u.Method.String(),
			Reason:   u.Reason.String(),
			Elapsed:  int64(u.Elapsed),
			Snapshot: u.Snapshot,
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to encode statistics update",
				clog.String("method", u.Method.String()), clog.Error(err))
			return
		}

		msg := nats.NewMsg(subject)
		msg.Header.Set(HeaderContentType, s.ContentType())
		msg.Data = data
		if err := pub.PublishMsg(msg); err != nil {
			logger.ErrorContext(ctx, "failed to publish statistics update",
				clog.String("subject", subject), clog.String("method", u.Method.String()), clog.Error(err))
		}
	}
}
