package fix

import "strconv"

// SOH 是协议标准的字段分隔符.
const SOH byte = 0x01

// Tag 是 FIX 字段编号，非负整数.
type Tag uint32

func (t Tag) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// Tag definitions (常用 Tag)
const (
	TagAccount       Tag = 1
	TagBeginSeqNo    Tag = 7
	TagBeginString   Tag = 8
	TagBodyLength    Tag = 9
	TagCheckSum      Tag = 10
	TagClOrdID       Tag = 11
	TagEndSeqNo      Tag = 16
	TagMsgSeqNum     Tag = 34
	TagMsgType       Tag = 35
	TagNewSeqNo      Tag = 36
	TagOrderQty      Tag = 38
	TagOrdType       Tag = 40
	TagPossDupFlag   Tag = 43
	TagPrice         Tag = 44
	TagRefSeqNum     Tag = 45
	TagSenderCompID  Tag = 49
	TagSendingTime   Tag = 52
	TagSide          Tag = 54
	TagSymbol        Tag = 55
	TagTargetCompID  Tag = 56
	TagText          Tag = 58
	TagTransactTime  Tag = 60
	TagSignature     Tag = 89
	TagSignatureLen  Tag = 93
	TagEncryptMethod Tag = 98
	TagHeartBtInt    Tag = 108
	TagTestReqID     Tag = 112
)

// 协议约定中属于标准头部的 tag，字典未声明时据此归类.
var conventionalHeader = map[Tag]struct{}{
	8: {}, 9: {}, 35: {}, 49: {}, 56: {}, 34: {}, 52: {}, 43: {}, 97: {},
	122: {}, 115: {}, 128: {}, 50: {}, 57: {}, 142: {}, 143: {}, 144: {},
	145: {}, 116: {}, 129: {}, 90: {}, 91: {}, 212: {}, 213: {}, 347: {},
	369: {}, 627: {}, 628: {}, 629: {}, 630: {},
}

var conventionalTrailer = map[Tag]struct{}{
	TagSignatureLen: {}, TagSignature: {}, TagCheckSum: {},
}

// ConventionalSection 按协议约定返回 tag 所属分区，正文字段返回 false.
func ConventionalSection(tag Tag) (Section, bool) {
	if _, ok := conventionalHeader[tag]; ok {
		return SectionHeader, true
	}
	if _, ok := conventionalTrailer[tag]; ok {
		return SectionTrailer, true
	}
	return SectionBody, false
}

// ParseTag 解析规范十进制 tag：仅数字，无符号，无前导零（"0" 除外）.
func ParseTag(s string) (Tag, error) {
	if s == "" {
		return 0, newError(KindMalformedTag, "empty tag")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, newError(KindMalformedTag, "tag %q has leading zeros", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, newError(KindMalformedTag, "tag %q is not a non-negative integer", s)
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, WrapError(KindMalformedTag, err, "tag %q out of range", s)
	}
	return Tag(n), nil
}
