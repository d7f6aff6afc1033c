package transcode

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/fixrelay/connectivity/fix"
	"github.com/wyfcoding/fixrelay/connectivity/fix/fixjson"
	"github.com/wyfcoding/fixrelay/connectivity/fix/tagvalue"
	"github.com/wyfcoding/fixrelay/logging"
	"github.com/wyfcoding/fixrelay/metrics"
)

const (
	heartbeatJSON = `{"Header":{"BeginString":"FIX.4.2","MsgType":"0","MsgSeqNum":"12","SenderCompID":"A","TargetCompID":"B","SendingTime":"20160802-21:14:38.717"},"Body":{},"Trailer":{}}`
	heartbeatWire = "8=FIX.4.2|35=0|49=A|56=B|34=12|52=20160802-21:14:38.717|"
)

type codecs struct {
	json *fixjson.Codec
	tv   *tagvalue.Codec
}

func newCodecs() codecs {
	dict := fix.MustLoadDictionary("FIX.4.2")
	return codecs{
		json: fixjson.NewCodec(dict, fixjson.Config{}),
		tv:   tagvalue.NewCodec(dict, tagvalue.Config{Separator: '|'}),
	}
}

func quietLogger() *logging.Logger {
	return logging.NewFromConfig(logging.Config{Service: "test", Module: "transcode", Writer: io.Discard})
}

func TestTranscode_JSONToTagValue(t *testing.T) {
	c := newCodecs()
	tr := New("json_to_tagvalue", c.json, c.tv, WithLogger(quietLogger()))

	out, err := tr.Transcode(context.Background(), []byte(heartbeatJSON))
	require.NoError(t, err)
	assert.Equal(t, heartbeatWire, string(out))
}

func TestTranscode_TagValueToJSON(t *testing.T) {
	c := newCodecs()
	tr := New("tagvalue_to_json", c.tv, c.json, WithLogger(quietLogger()))

	res, err := tr.Run(context.Background(), []byte(heartbeatWire))
	require.NoError(t, err)
	assert.Equal(t, `{"Header":{"8":"FIX.4.2","35":"0","49":"A","56":"B","34":"12","52":"20160802-21:14:38.717"},"Body":{},"Trailer":{}}`, string(res.Output))
	assert.Equal(t, "0", res.Message.MsgType())
}

func TestTranscode_RoundTripBothWays(t *testing.T) {
	c := newCodecs()
	there := New("a", c.json, c.tv, WithLogger(quietLogger()))
	back := New("b", c.tv, c.json, WithLogger(quietLogger()))

	wire, err := there.Transcode(context.Background(), []byte(heartbeatJSON))
	require.NoError(t, err)
	js, err := back.Transcode(context.Background(), wire)
	require.NoError(t, err)
	again, err := there.Transcode(context.Background(), js)
	require.NoError(t, err)
	assert.Equal(t, string(wire), string(again))
}

func TestTranscode_DecodeFailure(t *testing.T) {
	c := newCodecs()
	m := metrics.NewMetrics("test")
	tm := NewMetrics(m)
	tr := New("json_to_tagvalue", c.json, c.tv, WithMetrics(tm), WithLogger(quietLogger()))

	out, err := tr.Transcode(context.Background(), []byte(`{"Header":{"BeginString":"FIX.4.2","MsgType":"0","SenderCompID":"A"}}`))
	assert.Nil(t, out)

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StageDecode, te.Stage)
	assert.Equal(t, fix.KindMissingRequiredField, te.Kind())
	assert.ErrorIs(t, err, fix.ErrMissingRequiredField)
	assert.Contains(t, err.Error(), "transcode decode:")

	stage, ok := StageOf(err)
	assert.True(t, ok)
	assert.Equal(t, StageDecode, stage)

	assert.Equal(t, 1.0, testutil.ToFloat64(tm.total.WithLabelValues("json_to_tagvalue", "decode", "error", "MissingRequiredField")))
}

func TestTranscode_ValidateFailure(t *testing.T) {
	c := newCodecs()
	tr := New("json_to_tagvalue", c.json, c.tv,
		WithValidator(fix.TypeValidator{}, nil),
		WithLogger(quietLogger()))

	// MsgSeqNum 不是整数
	_, err := tr.Transcode(context.Background(), []byte(`{"Header":{"8":"FIX.4.2","35":"0","34":"twelve"}}`))
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StageValidate, te.Stage)
	assert.Equal(t, fix.KindTypeMismatch, te.Kind())
}

func TestTranscode_SeparatorInValue(t *testing.T) {
	c := newCodecs()
	tm := NewMetrics(metrics.NewMetrics("test"))
	tr := New("json_to_tagvalue", c.json, c.tv, WithMetrics(tm), WithLogger(quietLogger()))

	out, err := tr.Transcode(context.Background(),
		[]byte(`{"Header":{"8":"FIX.4.2","35":"0","34":"1","49":"A|56=EVIL","56":"B"}}`))
	assert.Nil(t, out)

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StageValidate, te.Stage)
	assert.Equal(t, fix.KindTypeMismatch, te.Kind())

	var fe *fix.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fix.TagSenderCompID, fe.Tag)
	assert.Equal(t, 1.0, testutil.ToFloat64(tm.total.WithLabelValues("json_to_tagvalue", "validate", "error", "TypeMismatch")))
}

type brokenTarget struct{ *tagvalue.Codec }

func (brokenTarget) EncodeTo(io.Writer, *fix.Message) error { return errors.New("sink closed") }

func TestTranscode_EncodeFailure(t *testing.T) {
	c := newCodecs()
	tr := New("json_to_tagvalue", c.json, brokenTarget{c.tv}, WithLogger(quietLogger()))

	out, err := tr.Transcode(context.Background(), []byte(heartbeatJSON))
	assert.Nil(t, out)
	stage, ok := StageOf(err)
	require.True(t, ok)
	assert.Equal(t, StageEncode, stage)
	assert.Equal(t, fix.KindUnknown, err.(*Error).Kind())
}

func TestTranscode_SuccessMetrics(t *testing.T) {
	c := newCodecs()
	tm := NewMetrics(metrics.NewMetrics("test"))
	tr := New("json_to_tagvalue", c.json, c.tv, WithMetrics(tm), WithLogger(quietLogger()))

	_, err := tr.Transcode(context.Background(), []byte(heartbeatJSON))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(tm.total.WithLabelValues("json_to_tagvalue", "encode", "ok", "")))
}

func TestTranscode_Concurrent(t *testing.T) {
	c := newCodecs()
	tr := New("json_to_tagvalue", c.json, c.tv, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := tr.Transcode(context.Background(), []byte(heartbeatJSON))
			if err == nil && !bytes.Equal(out, []byte(heartbeatWire)) {
				err = errors.New("unexpected output " + string(out))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "validate", StageValidate.String())
	assert.Equal(t, "Stage(9)", Stage(9).String())
	_, ok := StageOf(errors.New("x"))
	assert.False(t, ok)
}
