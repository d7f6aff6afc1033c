package fix

import (
	"iter"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Section 标识报文的三个分区.
type Section uint8

const (
	SectionHeader Section = iota
	SectionBody
	SectionTrailer
)

// Sections 按编码顺序列出全部分区.
var Sections = [...]Section{SectionHeader, SectionBody, SectionTrailer}

var sectionNames = [...]string{"Header", "Body", "Trailer"}

func (s Section) String() string {
	if int(s) < len(sectionNames) {
		return sectionNames[s]
	}
	return "Section(" + strconv.Itoa(int(s)) + ")"
}

// ParseSection 按名称解析分区，大小写敏感.
func ParseSection(name string) (Section, bool) {
	for _, s := range Sections {
		if sectionNames[s] == name {
			return s, true
		}
	}
	return SectionBody, false
}

// Field 是一个 tag 与原始值的组合，值的类型解释延迟到使用时.
type Field struct {
	Tag   Tag
	Value string
}

// Message 是报文的规范内存表示.
// 每个实例只属于一次转换操作，不做并发保护.
type Message struct {
	dict     *Dictionary
	sections [3][]Field
	index    [3]map[Tag]int
}

// NewMessage 创建一个绑定字典的空报文，dict 可以为 nil.
func NewMessage(dict *Dictionary) *Message {
	m := &Message{dict: dict}
	for i := range m.index {
		m.index[i] = make(map[Tag]int)
	}
	return m
}

// Dictionary 返回解释该报文所用的字典.
func (m *Message) Dictionary() *Dictionary {
	return m.dict
}

// Add 在分区末尾追加字段。同一分区内 tag 重复时返回 ErrDuplicateField.
func (m *Message) Add(section Section, tag Tag, value string) error {
	if int(section) >= len(m.sections) {
		return fieldError(KindMalformedInput, tag, "invalid section %d", section)
	}
	if _, dup := m.index[section][tag]; dup {
		return fieldError(KindDuplicateField, tag, "tag %d already present in %s", tag, section)
	}
	m.index[section][tag] = len(m.sections[section])
	m.sections[section] = append(m.sections[section], Field{Tag: tag, Value: value})
	return nil
}

// Get 按 Header、Body、Trailer 的优先级查找字段值.
func (m *Message) Get(tag Tag) (string, bool) {
	for _, s := range Sections {
		if v, ok := m.GetIn(s, tag); ok {
			return v, true
		}
	}
	return "", false
}

// GetIn 只在指定分区内查找.
func (m *Message) GetIn(section Section, tag Tag) (string, bool) {
	if int(section) >= len(m.sections) {
		return "", false
	}
	i, ok := m.index[section][tag]
	if !ok {
		return "", false
	}
	return m.sections[section][i].Value, true
}

// Has 报告任一分区是否包含该 tag.
func (m *Message) Has(tag Tag) bool {
	_, ok := m.Get(tag)
	return ok
}

// Len 返回全部字段数.
func (m *Message) Len() int {
	return len(m.sections[SectionHeader]) + len(m.sections[SectionBody]) + len(m.sections[SectionTrailer])
}

// Count 返回分区内字段数.
func (m *Message) Count(section Section) int {
	if int(section) >= len(m.sections) {
		return 0
	}
	return len(m.sections[section])
}

// Fields 按插入顺序遍历分区，可重复调用.
func (m *Message) Fields(section Section) iter.Seq2[Tag, string] {
	return func(yield func(Tag, string) bool) {
		if int(section) >= len(m.sections) {
			return
		}
		for _, f := range m.sections[section] {
			if !yield(f.Tag, f.Value) {
				return
			}
		}
	}
}

// All 依次遍历 Header、Body、Trailer 的全部字段.
func (m *Message) All() iter.Seq2[Section, Field] {
	return func(yield func(Section, Field) bool) {
		for _, s := range Sections {
			for _, f := range m.sections[s] {
				if !yield(s, f) {
					return
				}
			}
		}
	}
}

// MsgType 返回头部的 MsgType(35).
func (m *Message) MsgType() string {
	v, _ := m.GetIn(SectionHeader, TagMsgType)
	return v
}

// BeginString 返回头部的 BeginString(8).
func (m *Message) BeginString() string {
	v, _ := m.GetIn(SectionHeader, TagBeginString)
	return v
}

var completenessTags = [...]Tag{TagBeginString, TagMsgType, TagMsgSeqNum}

// Validate 检查头部是否完整：BeginString、MsgType、MsgSeqNum 缺一不可.
func (m *Message) Validate() error {
	for _, tag := range completenessTags {
		if _, ok := m.GetIn(SectionHeader, tag); !ok {
			return fieldError(KindMissingRequiredField, tag, "header lacks %s", m.fieldName(tag))
		}
	}
	return nil
}

// Layout 返回报文对应的字典布局。MsgType 未声明时退化为标准头尾布局，无字典时返回 nil.
func (m *Message) Layout() *MessageLayout {
	if m.dict == nil {
		return nil
	}
	if l, ok := m.dict.MessageLayout(m.MsgType()); ok {
		return l
	}
	return m.dict.StandardLayout()
}

// Ordered 返回分区字段的规范顺序：布局声明的字段按字典顺序在前，其余按插入顺序在后.
func (m *Message) Ordered(section Section) []Field {
	if int(section) >= len(m.sections) {
		return nil
	}
	out := slices.Clone(m.sections[section])
	layout := m.Layout()
	if layout == nil {
		return out
	}
	rank := func(f Field) int {
		if pos, ok := layout.Position(section, f.Tag); ok {
			return pos
		}
		return math.MaxInt
	}
	slices.SortStableFunc(out, func(a, b Field) int {
		ra, rb := rank(a), rank(b)
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		}
		return 0
	})
	return out
}

// Normalize 将每个分区重排为规范顺序.
func (m *Message) Normalize() {
	for _, s := range Sections {
		m.sections[s] = m.Ordered(s)
		clear(m.index[s])
		for i, f := range m.sections[s] {
			m.index[s][f.Tag] = i
		}
	}
}

// Equal 逐分区比较字段集合，忽略分区内顺序.
func (m *Message) Equal(other *Message) bool {
	if other == nil {
		return false
	}
	for _, s := range Sections {
		if len(m.sections[s]) != len(other.sections[s]) {
			return false
		}
		for _, f := range m.sections[s] {
			v, ok := other.GetIn(s, f.Tag)
			if !ok || v != f.Value {
				return false
			}
		}
	}
	return true
}

// String 以 '|' 分隔输出规范顺序的报文，便于日志与调试.
func (m *Message) String() string {
	var b strings.Builder
	for _, s := range Sections {
		for _, f := range m.Ordered(s) {
			b.WriteString(f.Tag.String())
			b.WriteByte('=')
			b.WriteString(f.Value)
			b.WriteByte('|')
		}
	}
	return b.String()
}

func (m *Message) fieldName(tag Tag) string {
	if m.dict != nil {
		return m.dict.FieldName(tag) + "(" + tag.String() + ")"
	}
	return tag.String()
}

func (m *Message) lookup(tag Tag) (string, error) {
	v, ok := m.Get(tag)
	if !ok {
		return "", fieldError(KindMissingRequiredField, tag, "%s not present", m.fieldName(tag))
	}
	return v, nil
}

// Int 将字段解释为整数.
func (m *Message) Int(tag Tag) (int64, error) {
	v, err := m.lookup(tag)
	if err != nil {
		return 0, err
	}
	n, err := parseInt(v)
	if err != nil {
		return 0, WrapError(KindTypeMismatch, err, "%s=%q is not an integer", m.fieldName(tag), v)
	}
	return n, nil
}

// Decimal 将字段解释为定点小数（价格、数量、金额等）.
func (m *Message) Decimal(tag Tag) (decimal.Decimal, error) {
	v, err := m.lookup(tag)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := parseDecimal(v)
	if err != nil {
		return decimal.Zero, WrapError(KindTypeMismatch, err, "%s=%q is not a decimal", m.fieldName(tag), v)
	}
	return d, nil
}

// Time 将字段解释为 UTC 时间戳，兼容毫秒与微秒精度.
func (m *Message) Time(tag Tag) (time.Time, error) {
	v, err := m.lookup(tag)
	if err != nil {
		return time.Time{}, err
	}
	t, err := parseUTCTimestamp(v)
	if err != nil {
		return time.Time{}, WrapError(KindTypeMismatch, err, "%s=%q is not a UTC timestamp", m.fieldName(tag), v)
	}
	return t, nil
}

// Bool 将字段解释为 Y/N.
func (m *Message) Bool(tag Tag) (bool, error) {
	v, err := m.lookup(tag)
	if err != nil {
		return false, err
	}
	b, err := parseBool(v)
	if err != nil {
		return false, WrapError(KindTypeMismatch, err, "%s=%q is not a boolean", m.fieldName(tag), v)
	}
	return b, nil
}

// Char 将字段解释为单个字符.
func (m *Message) Char(tag Tag) (byte, error) {
	v, err := m.lookup(tag)
	if err != nil {
		return 0, err
	}
	if len(v) != 1 {
		return 0, fieldError(KindTypeMismatch, tag, "%s=%q is not a single character", m.fieldName(tag), v)
	}
	return v[0], nil
}
