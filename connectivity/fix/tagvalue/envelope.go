package tagvalue

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/wyfcoding/fixrelay/connectivity/fix"
)

// checksum 是字节和对 256 取模.
func checksum(b []byte) int {
	sum := 0
	for _, c := range b {
		sum += int(c)
	}
	return sum % 256
}

// encodeEnvelope 输出 8、9、35 在前，CheckSum 在末尾的完整报文.
// 报文自带的 9 与 10 会被重新计算的值取代.
func (c *Codec) encodeEnvelope(msg *fix.Message) []byte {
	sep := c.cfg.Separator
	var body bytes.Buffer
	if v, ok := msg.GetIn(fix.SectionHeader, fix.TagMsgType); ok {
		writeField(&body, fix.TagMsgType, v, sep)
	}
	for _, s := range fix.Sections {
		for _, f := range msg.Ordered(s) {
			switch f.Tag {
			case fix.TagBeginString, fix.TagBodyLength, fix.TagMsgType, fix.TagCheckSum:
				if s != fix.SectionBody {
					continue
				}
			}
			writeField(&body, f.Tag, f.Value, sep)
		}
	}

	var out bytes.Buffer
	out.Grow(body.Len() + 32)
	if v, ok := msg.GetIn(fix.SectionHeader, fix.TagBeginString); ok {
		writeField(&out, fix.TagBeginString, v, sep)
	}
	writeField(&out, fix.TagBodyLength, strconv.Itoa(body.Len()), sep)
	out.Write(body.Bytes())
	writeField(&out, fix.TagCheckSum, fmt.Sprintf("%03d", checksum(out.Bytes())), sep)
	return out.Bytes()
}

// verifyEnvelope 校验 BodyLength 与 CheckSum。要求 9 紧随 8，10 为最后一个字段.
func verifyEnvelope(data []byte, fields []rawField) error {
	if len(fields) < 3 || fields[0].tag != fix.TagBeginString || fields[1].tag != fix.TagBodyLength {
		return fix.FieldErrorf(fix.KindMissingRequiredField, fix.TagBodyLength, "BodyLength must directly follow BeginString")
	}
	last := fields[len(fields)-1]
	if last.tag != fix.TagCheckSum {
		return fix.FieldErrorf(fix.KindMissingRequiredField, fix.TagCheckSum, "CheckSum must be the last field")
	}

	declared, err := strconv.Atoi(fields[1].value)
	if err != nil || declared < 0 {
		return fix.FieldErrorf(fix.KindTypeMismatch, fix.TagBodyLength, "BodyLength %q is not a length", fields[1].value)
	}
	if actual := last.start - fields[1].end; actual != declared {
		return fix.FieldErrorf(fix.KindChecksumMismatch, fix.TagBodyLength, "BodyLength %d, counted %d", declared, actual)
	}

	want := fmt.Sprintf("%03d", checksum(data[:last.start]))
	if last.value != want {
		return fix.FieldErrorf(fix.KindChecksumMismatch, fix.TagCheckSum, "CheckSum %q, computed %s", last.value, want)
	}
	return nil
}
