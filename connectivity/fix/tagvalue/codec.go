// Package tagvalue 实现 FIX 线路格式 tag=value<SEP> 的编解码.
package tagvalue

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wyfcoding/fixrelay/connectivity/fix"
)

// DefaultSeparator 是协议标准分隔符 SOH.
const DefaultSeparator = fix.SOH

// Unmatched 决定既不在字典布局中、也不属于约定头尾的 tag 如何归类.
type Unmatched uint8

const (
	UnmatchedBody Unmatched = iota
	UnmatchedHeader
	UnmatchedTrailer
	UnmatchedReject
)

// ParseUnmatched 解析配置中的归类策略，空串表示默认的 body.
func ParseUnmatched(s string) (Unmatched, error) {
	switch s {
	case "", "body":
		return UnmatchedBody, nil
	case "header":
		return UnmatchedHeader, nil
	case "trailer":
		return UnmatchedTrailer, nil
	case "reject":
		return UnmatchedReject, nil
	}
	return UnmatchedBody, fmt.Errorf("unknown unmatched policy %q", s)
}

// Config 是编解码器配置，按值复制进 Codec.
type Config struct {
	// Separator 为 0 时使用 SOH.
	Separator byte
	Unmatched Unmatched
	// AllowUnknownMessageTypes 允许字典中没有布局的 MsgType.
	AllowUnknownMessageTypes bool
	// Envelope 开启时编码器计算 BodyLength(9)/CheckSum(10)，解码器校验二者.
	Envelope bool
}

// Codec 是无状态的线路格式编解码器，可被并发使用.
type Codec struct {
	dict *fix.Dictionary
	cfg  Config
}

// NewCodec 创建编解码器，dict 不能为空.
func NewCodec(dict *fix.Dictionary, cfg Config) *Codec {
	if cfg.Separator == 0 {
		cfg.Separator = DefaultSeparator
	}
	return &Codec{dict: dict, cfg: cfg}
}

func (c *Codec) Name() string { return "tagvalue" }

func (c *Codec) ContentType() string { return "text/plain; charset=utf-8" }

// Separator 返回生效的分隔符.
func (c *Codec) Separator() byte { return c.cfg.Separator }

type rawField struct {
	tag   fix.Tag
	value string
	start int // 字段在输入中的起始偏移
	end   int // 分隔符之后的偏移
}

// Decode 将线路字节解析为报文.
// 每段在第一个 '=' 处切分，值原样保留；最后一段可以没有结尾分隔符.
func (c *Codec) Decode(data []byte) (*fix.Message, error) {
	fields, err := c.scan(data)
	if err != nil {
		return nil, err
	}

	msgType := ""
	for _, f := range fields {
		if f.tag == fix.TagMsgType {
			msgType = f.value
			break
		}
	}
	layout, known := c.dict.MessageLayout(msgType)
	if !known {
		layout = c.dict.StandardLayout()
	}

	msg := fix.NewMessage(c.dict)
	for _, f := range fields {
		section, err := c.classify(layout, f.tag)
		if err != nil {
			return nil, err
		}
		if err := msg.Add(section, f.tag, f.value); err != nil {
			return nil, err
		}
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if !known && !c.cfg.AllowUnknownMessageTypes {
		return nil, fix.FieldErrorf(fix.KindUnknownMessageType, fix.TagMsgType,
			"%s has no layout for MsgType %q", c.dict.Version(), msgType)
	}
	if c.cfg.Envelope {
		if err := verifyEnvelope(data, fields); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func (c *Codec) scan(data []byte) ([]rawField, error) {
	sep := c.cfg.Separator
	fields := make([]rawField, 0, bytes.Count(data, []byte{sep})+1)
	for start := 0; start < len(data); {
		end := bytes.IndexByte(data[start:], sep)
		var next int
		if end < 0 {
			end = len(data)
			next = len(data)
		} else {
			end += start
			next = end + 1
		}
		chunk := data[start:end]
		eq := bytes.IndexByte(chunk, '=')
		if eq < 0 {
			return nil, fix.Errorf(fix.KindMalformedTag, "field at offset %d has no '='", start)
		}
		tag, err := fix.ParseTag(string(chunk[:eq]))
		if err != nil {
			var fe *fix.Error
			if errors.As(err, &fe) {
				fe.Detail = fmt.Sprintf("field at offset %d: %s", start, fe.Detail)
			}
			return nil, err
		}
		fields = append(fields, rawField{tag: tag, value: string(chunk[eq+1:]), start: start, end: next})
		start = next
	}
	return fields, nil
}

// classify 依次按消息布局、协议约定与 Unmatched 策略决定 tag 的分区.
func (c *Codec) classify(layout *fix.MessageLayout, tag fix.Tag) (fix.Section, error) {
	if s, ok := layout.SectionOf(tag); ok {
		return s, nil
	}
	if s, ok := fix.ConventionalSection(tag); ok {
		return s, nil
	}
	switch c.cfg.Unmatched {
	case UnmatchedHeader:
		return fix.SectionHeader, nil
	case UnmatchedTrailer:
		return fix.SectionTrailer, nil
	case UnmatchedReject:
		return fix.SectionBody, fix.FieldErrorf(fix.KindUnknownField, tag, "tag %d is not declared for MsgType %q", tag, layout.MsgType)
	}
	return fix.SectionBody, nil
}

// Encode 返回报文的线路字节.
func (c *Codec) Encode(msg *fix.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.EncodeTo(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CheckEncodable 报告报文能否无歧义地写成线路格式：任何值都不能包含分隔符.
func (c *Codec) CheckEncodable(msg *fix.Message) error {
	for section, f := range msg.All() {
		if strings.IndexByte(f.Value, c.cfg.Separator) >= 0 {
			return fix.FieldErrorf(fix.KindTypeMismatch, f.Tag,
				"%s value of tag %d contains the field separator %q", section, f.Tag, c.cfg.Separator)
		}
	}
	return nil
}

// EncodeTo 按 Header、Body、Trailer 的规范顺序写出全部字段，每个字段都以分隔符结尾.
// 值中含有分隔符时返回 TypeMismatch 且不写出任何字节，其余情况仅在 w 出错时失败.
func (c *Codec) EncodeTo(w io.Writer, msg *fix.Message) error {
	if err := c.CheckEncodable(msg); err != nil {
		return err
	}
	if c.cfg.Envelope {
		_, err := w.Write(c.encodeEnvelope(msg))
		return err
	}
	bw := bufio.NewWriter(w)
	for _, s := range fix.Sections {
		for _, f := range msg.Ordered(s) {
			writeField(bw, f.Tag, f.Value, c.cfg.Separator)
		}
	}
	return bw.Flush()
}

func writeField(w interface {
	io.ByteWriter
	io.StringWriter
}, tag fix.Tag, value string, sep byte) {
	w.WriteString(tag.String())
	w.WriteByte('=')
	w.WriteString(value)
	w.WriteByte(sep)
}
