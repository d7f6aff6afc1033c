// Package transcode 把一个编解码器的解码结果交给另一个编解码器编码。
//
// 每次调用独立完成 decode → validate → encode，任一阶段失败即返回 *Error，不产生部分输出。
// Transcoder 只持有两个不可变的编解码器，可被并发使用。
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/fixrelay/connectivity/fix"
	"github.com/wyfcoding/fixrelay/logging"
	"github.com/wyfcoding/fixrelay/tracing"
)

// Decoder 把字节解析为报文.
type Decoder interface {
	Decode(data []byte) (*fix.Message, error)
}

// Encoder 把报文写入 w，仅在 w 出错时失败.
type Encoder interface {
	EncodeTo(w io.Writer, msg *fix.Message) error
}

// EncodableChecker 由无法表示全部报文的编码器实现，在 validate 阶段调用.
type EncodableChecker interface {
	CheckEncodable(msg *fix.Message) error
}

// Codec 是一种报文表示的双向编解码器.
type Codec interface {
	Name() string
	ContentType() string
	Decoder
	Encoder
}

// Stage 标识流水线中失败的阶段.
type Stage uint8

const (
	StageDecode Stage = iota
	StageValidate
	StageEncode
)

func (s Stage) String() string {
	switch s {
	case StageDecode:
		return "decode"
	case StageValidate:
		return "validate"
	case StageEncode:
		return "encode"
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

// Error 记录失败阶段与底层错误.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return "transcode " + e.Stage.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Kind 返回底层的 FIX 错误类别，非 *fix.Error 时为 KindUnknown.
func (e *Error) Kind() fix.Kind { return fix.KindOf(e.Err) }

// StageOf 提取 err 链上的失败阶段.
func StageOf(err error) (Stage, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Stage, true
	}
	return 0, false
}

// Result 是一次成功转码的输出及解码得到的报文.
type Result struct {
	Output  []byte
	Message *fix.Message
}

// Transcoder 把 source 格式转为 target 格式.
type Transcoder struct {
	name       string
	source     Codec
	target     Codec
	validators []fix.Validator
	logger     *logging.Logger
	metrics    *Metrics
}

// Option 配置 Transcoder.
type Option func(*Transcoder)

// WithValidator 追加解码后、编码前执行的校验.
func WithValidator(v ...fix.Validator) Option {
	return func(t *Transcoder) {
		for _, x := range v {
			if x != nil {
				t.validators = append(t.validators, x)
			}
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(t *Transcoder) { t.logger = l }
}

// WithMetrics 启用转码指标，m 可在多个 Transcoder 间共享.
func WithMetrics(m *Metrics) Option {
	return func(t *Transcoder) { t.metrics = m }
}

// New 创建 Transcoder，name 用作日志与指标中的路由标签.
func New(name string, source, target Codec, opts ...Option) *Transcoder {
	t := &Transcoder{name: name, source: source, target: target}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logging.Default().WithModule("transcode")
	}
	return t
}

func (t *Transcoder) Name() string { return t.name }

func (t *Transcoder) Target() Codec { return t.target }

// Transcode 返回目标格式的字节.
func (t *Transcoder) Transcode(ctx context.Context, in []byte) ([]byte, error) {
	res, err := t.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// Run 执行完整流水线.
func (t *Transcoder) Run(ctx context.Context, in []byte) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "fix.transcode", trace.WithAttributes(
		attribute.String("fix.route", t.name),
		attribute.String("fix.source", t.source.Name()),
		attribute.String("fix.target", t.target.Name()),
		attribute.Int("fix.input_bytes", len(in)),
	))
	defer span.End()
	start := time.Now()

	msg, err := t.source.Decode(in)
	if err != nil {
		return nil, t.fail(ctx, StageDecode, err, start)
	}
	for _, v := range t.validators {
		if err := v.Validate(msg); err != nil {
			return nil, t.fail(ctx, StageValidate, err, start)
		}
	}
	if ec, ok := t.target.(EncodableChecker); ok {
		if err := ec.CheckEncodable(msg); err != nil {
			return nil, t.fail(ctx, StageValidate, err, start)
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(in))
	if err := t.target.EncodeTo(&buf, msg); err != nil {
		return nil, t.fail(ctx, StageEncode, err, start)
	}

	tracing.AddTag(ctx, "fix.msg_type", msg.MsgType())
	tracing.AddTag(ctx, "fix.fields", msg.Len())
	t.metrics.observeSuccess(t.name, msg.Len(), time.Since(start))
	t.logger.DebugContext(ctx, "message transcoded",
		"route", t.name,
		"msg_type", msg.MsgType(),
		"fields", msg.Len(),
		"output_bytes", buf.Len(),
	)
	return &Result{Output: buf.Bytes(), Message: msg}, nil
}

func (t *Transcoder) fail(ctx context.Context, stage Stage, err error, start time.Time) error {
	te := &Error{Stage: stage, Err: err}
	tracing.SetError(ctx, te)
	tracing.AddTag(ctx, "fix.stage", stage.String())
	tracing.AddTag(ctx, "fix.kind", te.Kind().String())
	t.metrics.observeFailure(t.name, stage, te.Kind(), time.Since(start))
	t.logger.WarnContext(ctx, "transcode failed",
		"route", t.name,
		"stage", stage.String(),
		"kind", te.Kind().String(),
		"error", err,
	)
	return te
}
