// Package serializer 提供统计更新等消息负载的编解码器。
package serializer

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/aspect/xerrors"
)

// ErrUnsupportedSerializer 不支持的序列化器类型
var ErrUnsupportedSerializer = xerrors.New("serializer: unsupported serializer type")

// Serializer 定义序列化接口
type Serializer interface {
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
	// ContentType 返回负载的 MIME 类型，随消息头一起发送
	ContentType() string
}

// JSONSerializer JSON 序列化器
type JSONSerializer struct{}

func (JSONSerializer) Marshal(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONSerializer) Unmarshal(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}

func (JSONSerializer) ContentType() string { return "application/json" }

// MessagePackSerializer MessagePack 序列化器，体积比 JSON 更小
//
// 整数按实际取值选用最短编码，计数类字段通常只占一个字节。
type MessagePackSerializer struct{}

func (MessagePackSerializer) Marshal(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MessagePackSerializer) Unmarshal(data []byte, dest any) error {
	return msgpack.Unmarshal(data, dest)
}

func (MessagePackSerializer) ContentType() string { return "application/msgpack" }

// New 创建序列化器
//
// 支持的序列化器类型:
//   - "json"（默认）: 兼容性最好
//   - "msgpack": 二进制编码，性能更优
func New(serializerType string) (Serializer, error) {
	switch serializerType {
	case "json", "":
		return JSONSerializer{}, nil
	case "msgpack":
		return MessagePackSerializer{}, nil
	default:
		return nil, xerrors.Wrapf(ErrUnsupportedSerializer, "type %q", serializerType)
	}
}
