package fix

import (
	"errors"
	"fmt"
)

// Kind 标识 FIX 编解码错误的类别。
type Kind uint8

const (
	KindUnknown Kind = iota
	KindMalformedTag
	KindTypeMismatch
	KindMissingRequiredField
	KindDuplicateField
	KindUnknownMessageType
	KindDictionaryVersionUnsupported
	KindMalformedInput
	KindUnknownField
	KindChecksumMismatch
)

var kindNames = [...]string{
	"Unknown",
	"MalformedTag",
	"TypeMismatch",
	"MissingRequiredField",
	"DuplicateField",
	"UnknownMessageType",
	"DictionaryVersionUnsupported",
	"MalformedInput",
	"UnknownField",
	"ChecksumMismatch",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

var (
	// ErrMalformedTag tag 不是合法的非负十进制整数.
	ErrMalformedTag = errors.New("malformed tag")
	// ErrTypeMismatch 字段值与声明类型不符.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrMissingRequiredField 缺少必填字段.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrDuplicateField 同一分区内重复的 tag.
	ErrDuplicateField = errors.New("duplicate field")
	// ErrUnknownMessageType 字典中没有该 MsgType 的布局.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrDictionaryVersionUnsupported 不支持的协议版本.
	ErrDictionaryVersionUnsupported = errors.New("dictionary version unsupported")
	// ErrMalformedInput 输入无法按格式解析.
	ErrMalformedInput = errors.New("malformed input")
	// ErrUnknownField 未声明的 tag 被拒绝.
	ErrUnknownField = errors.New("unknown field")
	// ErrChecksumMismatch BodyLength/CheckSum 校验失败.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

var kindSentinels = [...]error{
	KindMalformedTag:                 ErrMalformedTag,
	KindTypeMismatch:                 ErrTypeMismatch,
	KindMissingRequiredField:         ErrMissingRequiredField,
	KindDuplicateField:               ErrDuplicateField,
	KindUnknownMessageType:           ErrUnknownMessageType,
	KindDictionaryVersionUnsupported: ErrDictionaryVersionUnsupported,
	KindMalformedInput:               ErrMalformedInput,
	KindUnknownField:                 ErrUnknownField,
	KindChecksumMismatch:             ErrChecksumMismatch,
}

// Error 描述一次编解码失败，可通过 errors.Is 与上面的哨兵错误匹配。
// Tag 仅在 HasTag 为 true 时有意义.
type Error struct {
	Kind   Kind
	Tag    Tag
	HasTag bool
	Detail string
	Cause  error
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func fieldError(kind Kind, tag Tag, format string, args ...any) *Error {
	e := newError(kind, format, args...)
	e.Tag, e.HasTag = tag, true
	return e
}

func (e *Error) Error() string {
	msg := "fix: " + e.Kind.String()
	if e.HasTag {
		msg += " (tag " + e.Tag.String() + ")"
	}
	msg += ": " + e.Detail
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 使 errors.Is(err, ErrDuplicateField) 等判断成立。
func (e *Error) Is(target error) bool {
	if int(e.Kind) < len(kindSentinels) && kindSentinels[e.Kind] != nil {
		return kindSentinels[e.Kind] == target
	}
	return false
}

// Errorf 构造指定类别的错误，供各编解码器复用。
func Errorf(kind Kind, format string, args ...any) *Error {
	return newError(kind, format, args...)
}

// FieldErrorf 构造与具体 tag 关联的错误。
func FieldErrorf(kind Kind, tag Tag, format string, args ...any) *Error {
	return fieldError(kind, tag, format, args...)
}

// WrapError 以指定类别包装底层错误。
func WrapError(kind Kind, cause error, format string, args ...any) *Error {
	e := newError(kind, format, args...)
	e.Cause = cause
	return e
}

// KindOf 提取错误链上的 FIX 错误类别，非 FIX 错误返回 KindUnknown。
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}
