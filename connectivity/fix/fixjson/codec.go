// Package fixjson 实现 FIX 报文的 JSON 表示：
//
//	{"Header":{"8":"FIX.4.2",...},"Body":{...},"Trailer":{...}}
//
// 所有值均为字符串，字段的协议类型由字典在后续校验中解释.
package fixjson

import (
	"bytes"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/jsonc"

	"github.com/wyfcoding/fixrelay/connectivity/fix"
)

// KeyStyle 决定编码输出的字段键.
type KeyStyle uint8

const (
	// KeyTag 以十进制 tag 作为键，例如 "49".
	KeyTag KeyStyle = iota
	// KeyName 以字典字段名作为键，例如 "SenderCompID"；未声明的 tag 仍输出数字.
	KeyName
)

// ParseKeyStyle 解析配置值，空串等同 "tag".
func ParseKeyStyle(s string) (KeyStyle, error) {
	switch s {
	case "", "tag":
		return KeyTag, nil
	case "name":
		return KeyName, nil
	}
	return KeyTag, fmt.Errorf("unknown key style %q", s)
}

// Config 是 JSON 编解码配置.
type Config struct {
	// Pretty 只影响空白.
	Pretty   bool
	KeyStyle KeyStyle
	// Lenient 允许输入包含注释与尾随逗号.
	Lenient                  bool
	AllowUnknownMessageTypes bool
}

const indentStep = 2

var (
	compactAPI = jsoniter.Config{}.Froze()
	prettyAPI  = jsoniter.Config{IndentionStep: indentStep}.Froze()
)

// Codec 是无状态的 JSON 编解码器，可被并发使用.
type Codec struct {
	dict *fix.Dictionary
	cfg  Config
	api  jsoniter.API
}

// NewCodec 创建编解码器.
func NewCodec(dict *fix.Dictionary, cfg Config) *Codec {
	api := compactAPI
	if cfg.Pretty {
		api = prettyAPI
	}
	return &Codec{dict: dict, cfg: cfg, api: api}
}

func (c *Codec) Name() string { return "json" }

func (c *Codec) ContentType() string { return "application/json; charset=utf-8" }

// Decode 解析 JSON 报文。分区归属取自所在的 JSON 对象，与键顺序无关；
// 解码结果按字典规范顺序排列.
func (c *Codec) Decode(data []byte) (*fix.Message, error) {
	if c.cfg.Lenient {
		data = jsonc.ToJSON(data)
	}

	msg := fix.NewMessage(c.dict)
	it := jsoniter.ParseBytes(c.api, data)
	if it.WhatIsNext() != jsoniter.ObjectValue {
		return nil, malformed(it, "top level value must be an object")
	}

	var (
		failure error
		seen    [len(fix.Sections)]bool
	)
	complete := it.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		section, ok := fix.ParseSection(key)
		if !ok {
			failure = fix.Errorf(fix.KindMalformedInput, "unexpected top level key %q", key)
			return false
		}
		if seen[section] {
			failure = fix.Errorf(fix.KindMalformedInput, "section %s appears twice", section)
			return false
		}
		seen[section] = true
		if it.WhatIsNext() != jsoniter.ObjectValue {
			failure = fix.Errorf(fix.KindMalformedInput, "section %s must be an object", section)
			return false
		}
		failure = c.readSection(it, msg, section)
		return failure == nil
	})
	if failure != nil {
		return nil, failure
	}
	if !complete {
		return nil, malformed(it, "invalid JSON object")
	}
	// 对象之后只允许空白：jsoniter 在输入耗尽时才置 io.EOF，非法字节同样报告为 InvalidValue.
	if it.WhatIsNext() != jsoniter.InvalidValue || it.Error != io.EOF {
		return nil, fix.Errorf(fix.KindMalformedInput, "trailing data after object")
	}
	if !seen[fix.SectionHeader] {
		return nil, fix.Errorf(fix.KindMissingRequiredField, "object has no Header")
	}

	msg.Normalize()
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if _, ok := c.dict.MessageLayout(msg.MsgType()); !ok && !c.cfg.AllowUnknownMessageTypes {
		return nil, fix.FieldErrorf(fix.KindUnknownMessageType, fix.TagMsgType,
			"%s has no layout for MsgType %q", c.dict.Version(), msg.MsgType())
	}
	return msg, nil
}

func (c *Codec) readSection(it *jsoniter.Iterator, msg *fix.Message, section fix.Section) error {
	var failure error
	complete := it.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		tag, err := c.resolveKey(key)
		if err != nil {
			failure = err
			return false
		}
		if next := it.WhatIsNext(); next != jsoniter.StringValue {
			failure = fix.FieldErrorf(fix.KindTypeMismatch, tag, "%s.%s must be a string, got %s",
				section, key, valueTypeName(next))
			return false
		}
		if other, dup := sectionOf(msg, tag); dup && other != section {
			failure = fix.FieldErrorf(fix.KindDuplicateField, tag, "tag %d appears in both %s and %s", tag, other, section)
			return false
		}
		if err := msg.Add(section, tag, it.ReadString()); err != nil {
			failure = err
			return false
		}
		return true
	})
	if failure == nil && !complete {
		failure = malformed(it, "invalid JSON in "+section.String())
	}
	return failure
}

// sectionOf 返回 tag 已经所在的分区.
func sectionOf(msg *fix.Message, tag fix.Tag) (fix.Section, bool) {
	for _, s := range fix.Sections {
		if _, ok := msg.GetIn(s, tag); ok {
			return s, true
		}
	}
	return fix.SectionHeader, false
}

// resolveKey 接受十进制 tag 或字典字段名.
func (c *Codec) resolveKey(key string) (fix.Tag, error) {
	if len(key) > 0 && key[0] >= '0' && key[0] <= '9' {
		return fix.ParseTag(key)
	}
	if meta, ok := c.dict.FieldByName(key); ok {
		return meta.Tag, nil
	}
	return 0, fix.Errorf(fix.KindMalformedTag, "key %q is neither a tag number nor a %s field name", key, c.dict.Version())
}

func malformed(it *jsoniter.Iterator, detail string) error {
	if it.Error != nil && it.Error != io.EOF {
		return fix.WrapError(fix.KindMalformedInput, it.Error, "%s", detail)
	}
	return fix.Errorf(fix.KindMalformedInput, "%s", detail)
}

func valueTypeName(t jsoniter.ValueType) string {
	switch t {
	case jsoniter.NumberValue:
		return "number"
	case jsoniter.BoolValue:
		return "boolean"
	case jsoniter.NilValue:
		return "null"
	case jsoniter.ArrayValue:
		return "array"
	case jsoniter.ObjectValue:
		return "object"
	}
	return "invalid value"
}

// Encode 返回报文的 JSON 字节.
func (c *Codec) Encode(msg *fix.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.EncodeTo(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo 写出三个分区（空分区为 {}），分区内为规范顺序.
func (c *Codec) EncodeTo(w io.Writer, msg *fix.Message) error {
	stream := jsoniter.NewStream(c.api, w, 512)
	stream.WriteObjectStart()
	for i, s := range fix.Sections {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(s.String())
		fields := msg.Ordered(s)
		if len(fields) == 0 {
			stream.WriteEmptyObject()
			continue
		}
		stream.WriteObjectStart()
		for j, f := range fields {
			if j > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(c.key(f.Tag))
			stream.WriteString(f.Value)
		}
		stream.WriteObjectEnd()
	}
	stream.WriteObjectEnd()
	if c.cfg.Pretty {
		stream.WriteRaw("\n")
	}
	if err := stream.Flush(); err != nil {
		return err
	}
	return stream.Error
}

func (c *Codec) key(tag fix.Tag) string {
	if c.cfg.KeyStyle == KeyName {
		return c.dict.FieldName(tag)
	}
	return tag.String()
}
