package fixjson

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/fixrelay/connectivity/fix"
	"github.com/wyfcoding/fixrelay/connectivity/fix/tagvalue"
)

const heartbeatJSON = `{"Header":{"8":"FIX.4.2","35":"0","49":"A","56":"B","34":"12","52":"20160802-21:14:38.717"},"Body":{},"Trailer":{}}`

// 客户端通常以字段名作为键.
const heartbeatByName = `{"Header":{"BeginString":"FIX.4.2","MsgType":"0","MsgSeqNum":"12","SenderCompID":"A","TargetCompID":"B","SendingTime":"20160802-21:14:38.717"},"Body":{},"Trailer":{}}`

func newCodec(cfg Config) *Codec {
	return NewCodec(fix.MustLoadDictionary("FIX.4.2"), cfg)
}

func TestDecode_TagKeys(t *testing.T) {
	msg, err := newCodec(Config{}).Decode([]byte(heartbeatJSON))
	require.NoError(t, err)
	assert.Equal(t, 6, msg.Count(fix.SectionHeader))
	assert.Equal(t, "0", msg.MsgType())
	v, _ := msg.Get(fix.TagTargetCompID)
	assert.Equal(t, "B", v)
}

func TestDecode_NameKeysMatchTagKeys(t *testing.T) {
	c := newCodec(Config{})
	byTag, err := c.Decode([]byte(heartbeatJSON))
	require.NoError(t, err)
	byName, err := c.Decode([]byte(heartbeatByName))
	require.NoError(t, err)
	assert.True(t, byTag.Equal(byName))
}

func TestDecode_OrderIndependent(t *testing.T) {
	c := newCodec(Config{})
	shuffled := `{"Trailer":{},"Body":{},"Header":{"52":"20160802-21:14:38.717","34":"12","56":"B","49":"A","35":"0","8":"FIX.4.2"}}`

	a, err := c.Decode([]byte(heartbeatJSON))
	require.NoError(t, err)
	b, err := c.Decode([]byte(shuffled))
	require.NoError(t, err)

	ea, err := c.Encode(a)
	require.NoError(t, err)
	eb, err := c.Encode(b)
	require.NoError(t, err)
	assert.Equal(t, string(ea), string(eb))
	assert.Equal(t, heartbeatJSON, string(ea))
}

func TestDecode_OptionalBodyAndTrailer(t *testing.T) {
	msg, err := newCodec(Config{}).Decode([]byte(`{"Header":{"8":"FIX.4.2","35":"0","34":"1"}}`))
	require.NoError(t, err)
	assert.Equal(t, 0, msg.Count(fix.SectionBody))
	assert.Equal(t, 0, msg.Count(fix.SectionTrailer))
}

func TestDecode_SectionFromStructure(t *testing.T) {
	// 49 放在 Body 中时保持在 Body，不按字典重新归类.
	msg, err := newCodec(Config{}).Decode([]byte(
		`{"Header":{"8":"FIX.4.2","35":"0","34":"1"},"Body":{"49":"A"},"Trailer":{"58":"t"}}`))
	require.NoError(t, err)
	_, ok := msg.GetIn(fix.SectionBody, fix.TagSenderCompID)
	assert.True(t, ok)
	_, ok = msg.GetIn(fix.SectionTrailer, fix.TagText)
	assert.True(t, ok)
}

func TestDecode_Errors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  error
	}{
		{"missing seq num", `{"Header":{"BeginString":"FIX.4.2","MsgType":"0","SenderCompID":"A"},"Body":{},"Trailer":{}}`, fix.ErrMissingRequiredField},
		{"missing header", `{"Body":{},"Trailer":{}}`, fix.ErrMissingRequiredField},
		{"bad tag key", `{"Header":{"8":"FIX.4.2","35":"0","34":"1","-5":"x"}}`, fix.ErrMalformedTag},
		{"leading zero key", `{"Header":{"8":"FIX.4.2","35":"0","34":"1"},"Body":{"058":"x"}}`, fix.ErrMalformedTag},
		{"unknown name key", `{"Header":{"8":"FIX.4.2","35":"0","34":"1"},"Body":{"NotAField":"x"}}`, fix.ErrMalformedTag},
		{"number value", `{"Header":{"8":"FIX.4.2","35":"0","34":12}}`, fix.ErrTypeMismatch},
		{"bool value", `{"Header":{"8":"FIX.4.2","35":"0","34":"1","43":true}}`, fix.ErrTypeMismatch},
		{"null value", `{"Header":{"8":"FIX.4.2","35":"0","34":"1","58":null}}`, fix.ErrTypeMismatch},
		{"duplicate tag", `{"Header":{"8":"FIX.4.2","35":"0","34":"1","BeginString":"FIX.4.4"}}`, fix.ErrDuplicateField},
		{"unknown msg type", `{"Header":{"8":"FIX.4.2","35":"QQ","34":"1"}}`, fix.ErrUnknownMessageType},
		{"not an object", `["Header"]`, fix.ErrMalformedInput},
		{"section not object", `{"Header":{"8":"FIX.4.2","35":"0","34":"1"},"Body":[]}`, fix.ErrMalformedInput},
		{"null section", `{"Header":null}`, fix.ErrMalformedInput},
		{"unknown section", `{"Header":{"8":"FIX.4.2","35":"0","34":"1"},"Groups":{}}`, fix.ErrMalformedInput},
		{"repeated section", `{"Header":{"8":"FIX.4.2","35":"0","34":"1"},"Body":{},"Body":{}}`, fix.ErrMalformedInput},
		{"syntax", `{"Header":{"8":"FIX.4.2",`, fix.ErrMalformedInput},
		{"trailing comma", `{"Header":{"8":"FIX.4.2","35":"0","34":"1",}}`, fix.ErrMalformedInput},
		{"trailing data", `{"Header":{"8":"FIX.4.2","35":"0","34":"1"}} {}`, fix.ErrMalformedInput},
		{"trailing garbage", `{"Header":{"8":"FIX.4.2","35":"0","34":"1"}} x`, fix.ErrMalformedInput},
		{"trailing bracket", `{"Header":{"8":"FIX.4.2","35":"0","34":"1"}}]`, fix.ErrMalformedInput},
		{"tag in two sections", `{"Header":{"8":"FIX.4.2","35":"0","34":"1","55":"IBM"},"Body":{"55":"MSFT"}}`, fix.ErrDuplicateField},
		{"name and tag across sections", `{"Header":{"8":"FIX.4.2","35":"0","34":"1"},"Body":{"58":"a"},"Trailer":{"Text":"b"}}`, fix.ErrDuplicateField},
		{"empty", ``, fix.ErrMalformedInput},
	}
	c := newCodec(Config{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := c.Decode([]byte(tc.input))
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDecode_TrailingWhitespace(t *testing.T) {
	msg, err := newCodec(Config{}).Decode([]byte(heartbeatJSON + " \n\t\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "0", msg.MsgType())
}

func TestDecode_Lenient(t *testing.T) {
	input := `{
		// 心跳
		"Header": {"8": "FIX.4.2", "35": "0", "34": "1",},
		/* 正文为空 */
		"Body": {},
	}`
	_, err := newCodec(Config{}).Decode([]byte(input))
	assert.ErrorIs(t, err, fix.ErrMalformedInput)

	msg, err := newCodec(Config{Lenient: true}).Decode([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, "0", msg.MsgType())
}

func TestDecode_AllowUnknownMessageTypes(t *testing.T) {
	msg, err := newCodec(Config{AllowUnknownMessageTypes: true}).Decode(
		[]byte(`{"Header":{"8":"FIX.4.2","35":"QQ","34":"1"},"Body":{"7001":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, "QQ", msg.MsgType())
}

func TestEncode_EmptySections(t *testing.T) {
	msg := fix.NewMessage(fix.MustLoadDictionary("FIX.4.2"))
	require.NoError(t, msg.Add(fix.SectionHeader, fix.TagBeginString, "FIX.4.2"))
	require.NoError(t, msg.Add(fix.SectionHeader, fix.TagMsgType, "0"))
	require.NoError(t, msg.Add(fix.SectionHeader, fix.TagMsgSeqNum, "1"))

	out, err := newCodec(Config{}).Encode(msg)
	require.NoError(t, err)
	assert.Equal(t, `{"Header":{"8":"FIX.4.2","35":"0","34":"1"},"Body":{},"Trailer":{}}`, string(out))
}

func TestEncode_KeyStyleName(t *testing.T) {
	c := newCodec(Config{KeyStyle: KeyName})
	msg, err := c.Decode([]byte(`{"Header":{"8":"FIX.4.2","35":"0","34":"1"},"Body":{"112":"r","9100":"x"}}`))
	require.NoError(t, err)

	out, err := c.Encode(msg)
	require.NoError(t, err)
	assert.Equal(t, `{"Header":{"BeginString":"FIX.4.2","MsgType":"0","MsgSeqNum":"1"},"Body":{"TestReqID":"r","9100":"x"},"Trailer":{}}`, string(out))

	back, err := c.Decode(out)
	require.NoError(t, err)
	assert.True(t, msg.Equal(back))
}

func TestEncode_PrettyOnlyChangesWhitespace(t *testing.T) {
	msg, err := newCodec(Config{}).Decode([]byte(heartbeatJSON))
	require.NoError(t, err)

	pretty, err := newCodec(Config{Pretty: true}).Encode(msg)
	require.NoError(t, err)
	assert.Contains(t, string(pretty), "\n")
	assert.Contains(t, string(pretty), `"Body": {}`)

	compact := strings.Join(strings.Fields(string(pretty)), "")
	assert.Equal(t, heartbeatJSON, compact)

	back, err := newCodec(Config{}).Decode(pretty)
	require.NoError(t, err)
	assert.True(t, msg.Equal(back))
}

func TestEncode_EscapesValues(t *testing.T) {
	c := newCodec(Config{})
	msg, err := c.Decode([]byte(`{"Header":{"8":"FIX.4.2","35":"0","34":"1"},"Body":{"58":"say \"hi\"\u0001\\"}}`))
	require.NoError(t, err)
	v, _ := msg.Get(fix.TagText)
	assert.Equal(t, "say \"hi\"\x01\\", v)

	out, err := c.Encode(msg)
	require.NoError(t, err)
	back, err := c.Decode(out)
	require.NoError(t, err)
	assert.True(t, msg.Equal(back))
}

func TestRoundTrip(t *testing.T) {
	c := newCodec(Config{})
	inputs := []string{
		heartbeatJSON,
		`{"Header":{"8":"FIX.4.2","35":"D","34":"2","49":"A","56":"B","52":"20160802-21:14:38"},"Body":{"11":"c1","21":"1","55":"IBM","54":"1","60":"20160802-21:14:38","40":"2","44":"10.5","5000":"x"},"Trailer":{"10":"123"}}`,
	}
	for _, in := range inputs {
		m1, err := c.Decode([]byte(in))
		require.NoError(t, err)
		out, err := c.Encode(m1)
		require.NoError(t, err)
		m2, err := c.Decode(out)
		require.NoError(t, err)
		assert.True(t, m1.Equal(m2))
	}
}

func TestCrossCodec_Heartbeat(t *testing.T) {
	dict := fix.MustLoadDictionary("FIX.4.2")
	jc := NewCodec(dict, Config{})
	tv := tagvalue.NewCodec(dict, tagvalue.Config{Separator: '|'})

	fromJSON, err := jc.Decode([]byte(heartbeatByName))
	require.NoError(t, err)
	wire, err := tv.Encode(fromJSON)
	require.NoError(t, err)
	for _, want := range []string{"8=FIX.4.2|", "35=0|", "49=A|", "56=B|"} {
		assert.Contains(t, string(wire), want)
	}

	fromWire, err := tv.Decode(wire)
	require.NoError(t, err)
	for _, tag := range []fix.Tag{fix.TagBeginString, fix.TagMsgType, fix.TagSenderCompID, fix.TagTargetCompID} {
		a, _ := fromJSON.Get(tag)
		b, _ := fromWire.Get(tag)
		assert.Equal(t, a, b, tag)
	}
	// 两种解码器对常见头部字段的分区判断一致.
	assert.True(t, fromJSON.Equal(fromWire))
}

func TestParseKeyStyle(t *testing.T) {
	s, err := ParseKeyStyle("name")
	require.NoError(t, err)
	assert.Equal(t, KeyName, s)
	s, err = ParseKeyStyle("")
	require.NoError(t, err)
	assert.Equal(t, KeyTag, s)
	_, err = ParseKeyStyle("camel")
	assert.Error(t, err)
}
