package fix

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	layoutTimestamp = "20060102-15:04:05"
	layoutTimeOnly  = "15:04:05"
	layoutDate      = "20060102"
	layoutMonth     = "200601"
)

var (
	errExponent = errors.New("exponent notation not allowed")
	errNotYN    = errors.New("expected Y or N")
	errNegative = errors.New("negative value")
	errLength   = errors.New("unexpected length")
)

func parseInt(v string) (int64, error) {
	return strconv.ParseInt(v, 10, 64)
}

func parseUint(v string) (int64, error) {
	n, err := parseInt(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errNegative
	}
	return n, nil
}

// parseDecimal 接受协议的 FLOAT 表示：可选符号、数字与小数点，不接受科学计数法.
func parseDecimal(v string) (decimal.Decimal, error) {
	if strings.ContainsAny(v, "eE") {
		return decimal.Zero, errExponent
	}
	return decimal.NewFromString(v)
}

// parseUTCTimestamp 解析 YYYYMMDD-HH:MM:SS[.sss...]，time.Parse 自动接受小数秒.
func parseUTCTimestamp(v string) (time.Time, error) {
	return time.Parse(layoutTimestamp, v)
}

func parseBool(v string) (bool, error) {
	switch v {
	case "Y":
		return true, nil
	case "N":
		return false, nil
	}
	return false, errNotYN
}

// parseMonthYear 接受 YYYYMM、YYYYMMDD 与 YYYYMMwN 三种形式.
func parseMonthYear(v string) error {
	switch {
	case len(v) == 6:
		_, err := time.Parse(layoutMonth, v)
		return err
	case len(v) == 8 && v[6] == 'w' && v[7] >= '1' && v[7] <= '5':
		_, err := time.Parse(layoutMonth, v[:6])
		return err
	case len(v) == 8:
		_, err := time.Parse(layoutDate, v)
		return err
	}
	return errLength
}

func checkValue(t FieldType, v string) error {
	var err error
	switch t {
	case TypeInt:
		_, err = parseInt(v)
	case TypeLength, TypeSeqNum, TypeNumInGroup, TypeTagNum:
		_, err = parseUint(v)
	case TypeDayOfMonth:
		var n int64
		if n, err = parseInt(v); err == nil && (n < 1 || n > 31) {
			err = errors.New("day of month out of range")
		}
	case TypeFloat, TypePrice, TypePriceOffset, TypeQty, TypeAmt, TypePercentage:
		_, err = parseDecimal(v)
	case TypeChar:
		if len(v) != 1 {
			err = errLength
		}
	case TypeBoolean:
		_, err = parseBool(v)
	case TypeUTCTimestamp:
		_, err = parseUTCTimestamp(v)
	case TypeUTCTimeOnly:
		_, err = time.Parse(layoutTimeOnly, v)
	case TypeUTCDate, TypeUTCDateOnly, TypeLocalMktDate:
		_, err = time.Parse(layoutDate, v)
	case TypeMonthYear:
		err = parseMonthYear(v)
	case TypeCurrency:
		if len(v) != 3 {
			err = errLength
		}
	case TypeCountry:
		if len(v) != 2 {
			err = errLength
		}
	}
	return err
}

// Validator 在解码完成后对报文做附加的语义校验.
type Validator interface {
	Validate(m *Message) error
}

// ValidatorFunc 将普通函数适配为 Validator.
type ValidatorFunc func(m *Message) error

func (f ValidatorFunc) Validate(m *Message) error {
	return f(m)
}

// TypeValidator 按字典声明检查字段类型、枚举取值以及布局中的必填字段.
// 未在字典中声明的字段不做检查。BodyLength 与 CheckSum 由信封逻辑负责，不计入必填.
type TypeValidator struct {
	SkipRequired bool
}

func (v TypeValidator) Validate(m *Message) error {
	dict := m.Dictionary()
	if dict == nil {
		return nil
	}
	for _, s := range Sections {
		for _, f := range m.Ordered(s) {
			meta, ok := dict.Field(f.Tag)
			if !ok {
				continue
			}
			if err := checkValue(meta.Type, f.Value); err != nil {
				e := fieldError(KindTypeMismatch, f.Tag, "%s=%q is not a valid %s", meta.Name, f.Value, meta.Type)
				e.Cause = err
				return e
			}
			if err := checkEnum(meta, f.Value); err != nil {
				return err
			}
		}
	}
	if v.SkipRequired {
		return nil
	}
	layout := m.Layout()
	for _, s := range [...]Section{SectionHeader, SectionBody} {
		for _, ref := range layout.Fields(s) {
			if !ref.Required || ref.Tag == TagBodyLength || ref.Tag == TagCheckSum {
				continue
			}
			if _, ok := m.GetIn(s, ref.Tag); !ok {
				return fieldError(KindMissingRequiredField, ref.Tag, "%s %s requires %s",
					layout.Name, s, dict.FieldName(ref.Tag))
			}
		}
	}
	return nil
}

func checkEnum(meta *FieldMeta, v string) error {
	if len(meta.Values) == 0 {
		return nil
	}
	values := []string{v}
	if meta.Type == TypeMultipleValueString {
		values = strings.Fields(v)
	}
	for _, item := range values {
		if _, ok := meta.Values[item]; !ok {
			return fieldError(KindTypeMismatch, meta.Tag, "%s=%q is not an allowed value", meta.Name, item)
		}
	}
	return nil
}
