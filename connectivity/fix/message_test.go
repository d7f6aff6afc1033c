package fix

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHeartbeat(t *testing.T, dict *Dictionary) *Message {
	t.Helper()
	m := NewMessage(dict)
	require.NoError(t, m.Add(SectionHeader, TagBeginString, "FIX.4.2"))
	require.NoError(t, m.Add(SectionHeader, TagMsgType, "0"))
	require.NoError(t, m.Add(SectionHeader, TagMsgSeqNum, "12"))
	require.NoError(t, m.Add(SectionHeader, TagSenderCompID, "A"))
	require.NoError(t, m.Add(SectionHeader, TagTargetCompID, "B"))
	require.NoError(t, m.Add(SectionHeader, TagSendingTime, "20160802-21:14:38.717"))
	return m
}

func TestMessage_AddAndGet(t *testing.T) {
	m := newHeartbeat(t, nil)
	assert.Equal(t, 6, m.Len())
	assert.Equal(t, 6, m.Count(SectionHeader))
	assert.Equal(t, 0, m.Count(SectionBody))

	v, ok := m.Get(TagSenderCompID)
	require.True(t, ok)
	assert.Equal(t, "A", v)
	assert.Equal(t, "0", m.MsgType())
	assert.Equal(t, "FIX.4.2", m.BeginString())

	_, ok = m.Get(TagSymbol)
	assert.False(t, ok)
	assert.False(t, m.Has(TagSymbol))
}

func TestMessage_DuplicateField(t *testing.T) {
	m := newHeartbeat(t, nil)

	err := m.Add(SectionHeader, TagMsgType, "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateField)
	assert.Equal(t, "0", m.MsgType())

	// 不同分区允许相同 tag，查找按 Header 优先.
	require.NoError(t, m.Add(SectionBody, TagSenderCompID, "body"))
	v, _ := m.Get(TagSenderCompID)
	assert.Equal(t, "A", v)
	v, _ = m.GetIn(SectionBody, TagSenderCompID)
	assert.Equal(t, "body", v)
}

func TestMessage_FieldsPreserveInsertionOrder(t *testing.T) {
	m := NewMessage(nil)
	for _, tag := range []Tag{58, 11, 55} {
		require.NoError(t, m.Add(SectionBody, tag, tag.String()))
	}

	var got []Tag
	for tag := range m.Fields(SectionBody) {
		got = append(got, tag)
	}
	assert.Equal(t, []Tag{58, 11, 55}, got)

	// 序列可重复遍历.
	var again []Tag
	for tag := range m.Fields(SectionBody) {
		again = append(again, tag)
	}
	assert.Equal(t, got, again)
}

func TestMessage_AllStopsEarly(t *testing.T) {
	m := newHeartbeat(t, nil)
	require.NoError(t, m.Add(SectionTrailer, TagCheckSum, "000"))

	n := 0
	for range m.All() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)

	var sections []Section
	for s := range m.All() {
		sections = append(sections, s)
	}
	assert.Equal(t, SectionTrailer, sections[len(sections)-1])
}

func TestMessage_Validate(t *testing.T) {
	m := newHeartbeat(t, nil)
	assert.NoError(t, m.Validate())

	for _, missing := range []Tag{TagBeginString, TagMsgType, TagMsgSeqNum} {
		m := NewMessage(nil)
		for _, tag := range []Tag{TagBeginString, TagMsgType, TagMsgSeqNum} {
			if tag != missing {
				require.NoError(t, m.Add(SectionHeader, tag, "x"))
			}
		}
		err := m.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingRequiredField)

		var fe *Error
		require.ErrorAs(t, err, &fe)
		assert.True(t, fe.HasTag)
		assert.Equal(t, missing, fe.Tag)
	}

	// 头部字段放在 Body 中不算完整.
	m = NewMessage(nil)
	require.NoError(t, m.Add(SectionHeader, TagBeginString, "FIX.4.2"))
	require.NoError(t, m.Add(SectionHeader, TagMsgType, "0"))
	require.NoError(t, m.Add(SectionBody, TagMsgSeqNum, "1"))
	assert.ErrorIs(t, m.Validate(), ErrMissingRequiredField)
}

func TestMessage_OrderedUsesLayout(t *testing.T) {
	dict := MustLoadDictionary("FIX.4.2")
	m := NewMessage(dict)
	require.NoError(t, m.Add(SectionHeader, TagSendingTime, "20160802-21:14:38"))
	require.NoError(t, m.Add(SectionHeader, TagTargetCompID, "B"))
	require.NoError(t, m.Add(SectionHeader, 5000, "custom"))
	require.NoError(t, m.Add(SectionHeader, TagMsgType, "D"))
	require.NoError(t, m.Add(SectionHeader, TagBeginString, "FIX.4.2"))
	require.NoError(t, m.Add(SectionBody, 6000, "z"))
	require.NoError(t, m.Add(SectionBody, TagSymbol, "IBM"))
	require.NoError(t, m.Add(SectionBody, TagClOrdID, "c1"))

	tags := func(fs []Field) []Tag {
		out := make([]Tag, len(fs))
		for i, f := range fs {
			out[i] = f.Tag
		}
		return out
	}
	assert.Equal(t, []Tag{8, 35, 56, 52, 5000}, tags(m.Ordered(SectionHeader)))
	assert.Equal(t, []Tag{11, 55, 6000}, tags(m.Ordered(SectionBody)))

	// Ordered 不改变原有顺序，Normalize 才会.
	first := Tag(0)
	for tag := range m.Fields(SectionHeader) {
		first = tag
		break
	}
	assert.Equal(t, TagSendingTime, first)

	m.Normalize()
	for tag := range m.Fields(SectionHeader) {
		first = tag
		break
	}
	assert.Equal(t, TagBeginString, first)
	v, ok := m.GetIn(SectionHeader, 5000)
	require.True(t, ok)
	assert.Equal(t, "custom", v)
}

func TestMessage_OrderedWithoutDictionary(t *testing.T) {
	m := NewMessage(nil)
	require.NoError(t, m.Add(SectionBody, 55, "IBM"))
	require.NoError(t, m.Add(SectionBody, 11, "c1"))
	got := m.Ordered(SectionBody)
	require.Len(t, got, 2)
	assert.Equal(t, Tag(55), got[0].Tag)
	assert.Nil(t, m.Layout())
}

func TestMessage_Equal(t *testing.T) {
	a := newHeartbeat(t, nil)
	b := NewMessage(nil)
	// 相同字段集合，不同插入顺序.
	require.NoError(t, b.Add(SectionHeader, TagSendingTime, "20160802-21:14:38.717"))
	require.NoError(t, b.Add(SectionHeader, TagTargetCompID, "B"))
	require.NoError(t, b.Add(SectionHeader, TagSenderCompID, "A"))
	require.NoError(t, b.Add(SectionHeader, TagMsgSeqNum, "12"))
	require.NoError(t, b.Add(SectionHeader, TagMsgType, "0"))
	require.NoError(t, b.Add(SectionHeader, TagBeginString, "FIX.4.2"))
	assert.True(t, a.Equal(b))

	require.NoError(t, b.Add(SectionBody, TagText, "x"))
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}

func TestMessage_String(t *testing.T) {
	m := newHeartbeat(t, MustLoadDictionary("FIX.4.2"))
	assert.Equal(t, "8=FIX.4.2|35=0|49=A|56=B|34=12|52=20160802-21:14:38.717|", m.String())
}

func TestMessage_TypedAccessors(t *testing.T) {
	m := newHeartbeat(t, MustLoadDictionary("FIX.4.2"))
	require.NoError(t, m.Add(SectionHeader, TagPossDupFlag, "Y"))
	require.NoError(t, m.Add(SectionBody, TagPrice, "101.25"))
	require.NoError(t, m.Add(SectionBody, TagSide, "1"))
	require.NoError(t, m.Add(SectionBody, TagOrderQty, "1e3"))

	seq, err := m.Int(TagMsgSeqNum)
	require.NoError(t, err)
	assert.Equal(t, int64(12), seq)

	px, err := m.Decimal(TagPrice)
	require.NoError(t, err)
	assert.True(t, px.Equal(decimal.RequireFromString("101.25")))

	ts, err := m.Time(TagSendingTime)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 8, 2, 21, 14, 38, 717_000_000, time.UTC), ts)

	dup, err := m.Bool(TagPossDupFlag)
	require.NoError(t, err)
	assert.True(t, dup)

	side, err := m.Char(TagSide)
	require.NoError(t, err)
	assert.Equal(t, byte('1'), side)

	_, err = m.Int(TagSenderCompID)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = m.Decimal(TagOrderQty)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = m.Char(TagSenderCompID + 1000)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestParseSection(t *testing.T) {
	s, ok := ParseSection("Trailer")
	require.True(t, ok)
	assert.Equal(t, SectionTrailer, s)
	_, ok = ParseSection("trailer")
	assert.False(t, ok)
	assert.Equal(t, "Header", SectionHeader.String())
}

func TestParseTag(t *testing.T) {
	for _, ok := range []string{"0", "8", "35", "4294967295"} {
		_, err := ParseTag(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "08", "-1", "+1", "1a", " 8", "4294967296"} {
		_, err := ParseTag(bad)
		assert.ErrorIs(t, err, ErrMalformedTag, bad)
	}
}

func TestConventionalSection(t *testing.T) {
	s, ok := ConventionalSection(TagSenderCompID)
	assert.True(t, ok)
	assert.Equal(t, SectionHeader, s)
	s, ok = ConventionalSection(TagCheckSum)
	assert.True(t, ok)
	assert.Equal(t, SectionTrailer, s)
	_, ok = ConventionalSection(TagSymbol)
	assert.False(t, ok)
}
