package fix

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed dictionaries/*.yaml
var dictionaryFS embed.FS

// FieldType 是字典声明的字段数据类型.
type FieldType string

const (
	TypeInt                 FieldType = "INT"
	TypeLength              FieldType = "LENGTH"
	TypeSeqNum              FieldType = "SEQNUM"
	TypeNumInGroup          FieldType = "NUMINGROUP"
	TypeTagNum              FieldType = "TAGNUM"
	TypeDayOfMonth          FieldType = "DAYOFMONTH"
	TypeFloat               FieldType = "FLOAT"
	TypePrice               FieldType = "PRICE"
	TypePriceOffset         FieldType = "PRICEOFFSET"
	TypeQty                 FieldType = "QTY"
	TypeAmt                 FieldType = "AMT"
	TypePercentage          FieldType = "PERCENTAGE"
	TypeChar                FieldType = "CHAR"
	TypeBoolean             FieldType = "BOOLEAN"
	TypeString              FieldType = "STRING"
	TypeMultipleValueString FieldType = "MULTIPLEVALUESTRING"
	TypeCurrency            FieldType = "CURRENCY"
	TypeExchange            FieldType = "EXCHANGE"
	TypeCountry             FieldType = "COUNTRY"
	TypeData                FieldType = "DATA"
	TypeUTCTimestamp        FieldType = "UTCTIMESTAMP"
	TypeUTCTimeOnly         FieldType = "UTCTIMEONLY"
	TypeUTCDate             FieldType = "UTCDATE"
	TypeUTCDateOnly         FieldType = "UTCDATEONLY"
	TypeLocalMktDate        FieldType = "LOCALMKTDATE"
	TypeMonthYear           FieldType = "MONTHYEAR"
)

var knownTypes = map[FieldType]struct{}{
	TypeInt: {}, TypeLength: {}, TypeSeqNum: {}, TypeNumInGroup: {}, TypeTagNum: {},
	TypeDayOfMonth: {}, TypeFloat: {}, TypePrice: {}, TypePriceOffset: {}, TypeQty: {},
	TypeAmt: {}, TypePercentage: {}, TypeChar: {}, TypeBoolean: {}, TypeString: {},
	TypeMultipleValueString: {}, TypeCurrency: {}, TypeExchange: {}, TypeCountry: {},
	TypeData: {}, TypeUTCTimestamp: {}, TypeUTCTimeOnly: {}, TypeUTCDate: {},
	TypeUTCDateOnly: {}, TypeLocalMktDate: {}, TypeMonthYear: {},
}

// FieldMeta 描述单个字段.
type FieldMeta struct {
	Tag    Tag
	Name   string
	Type   FieldType
	Values map[string]string // 枚举取值 → 描述，为空表示不限制
}

// FieldRef 是报文布局中对字段的引用.
type FieldRef struct {
	Tag      Tag
	Required bool
}

// MessageLayout 描述某一 MsgType 在 Header/Body/Trailer 中期望的字段及其顺序.
// 构造后不再修改，可被并发读取.
type MessageLayout struct {
	MsgType  string
	Name     string
	Category string

	sections [3][]FieldRef
	position [3]map[Tag]int
}

func newLayout(msgType, name, category string, header, body, trailer []FieldRef) *MessageLayout {
	l := &MessageLayout{MsgType: msgType, Name: name, Category: category}
	l.sections = [3][]FieldRef{header, body, trailer}
	for i, refs := range l.sections {
		l.position[i] = make(map[Tag]int, len(refs))
		for pos, ref := range refs {
			l.position[i][ref.Tag] = pos
		}
	}
	return l
}

// Fields 返回分区内声明的字段副本.
func (l *MessageLayout) Fields(section Section) []FieldRef {
	return slices.Clone(l.sections[section])
}

// SectionOf 返回布局中声明该 tag 的分区.
func (l *MessageLayout) SectionOf(tag Tag) (Section, bool) {
	for _, s := range Sections {
		if _, ok := l.position[s][tag]; ok {
			return s, true
		}
	}
	return SectionBody, false
}

// Position 返回 tag 在分区中的声明位置.
func (l *MessageLayout) Position(section Section, tag Tag) (int, bool) {
	pos, ok := l.position[section][tag]
	return pos, ok
}

// Dictionary 是按协议版本划分的只读字段与报文定义表.
type Dictionary struct {
	version  string
	fields   map[Tag]*FieldMeta
	names    map[string]*FieldMeta
	messages map[string]*MessageLayout
	standard *MessageLayout
}

// Version 返回协议版本标识，例如 "FIX.4.2".
func (d *Dictionary) Version() string {
	return d.version
}

// Field 按 tag 查找字段定义.
func (d *Dictionary) Field(tag Tag) (*FieldMeta, bool) {
	meta, ok := d.fields[tag]
	return meta, ok
}

// FieldByName 按字段名查找字段定义.
func (d *Dictionary) FieldByName(name string) (*FieldMeta, bool) {
	meta, ok := d.names[name]
	return meta, ok
}

// FieldName 返回字段名，未定义时返回 tag 的十进制形式.
func (d *Dictionary) FieldName(tag Tag) string {
	if meta, ok := d.fields[tag]; ok {
		return meta.Name
	}
	return tag.String()
}

// MessageLayout 按 MsgType 查找报文布局.
func (d *Dictionary) MessageLayout(msgType string) (*MessageLayout, bool) {
	l, ok := d.messages[msgType]
	return l, ok
}

// StandardLayout 仅包含标准头部与尾部，用于未知 MsgType 的排序与归类.
func (d *Dictionary) StandardLayout() *MessageLayout {
	return d.standard
}

// MessageTypes 按字典序返回所有已声明的 MsgType.
func (d *Dictionary) MessageTypes() []string {
	types := make([]string, 0, len(d.messages))
	for t := range d.messages {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

type dictionaryFile struct {
	Version  string         `yaml:"version"`
	Fields   []fieldSpec    `yaml:"fields"`
	Header   []fieldRefSpec `yaml:"header"`
	Trailer  []fieldRefSpec `yaml:"trailer"`
	Messages []messageSpec  `yaml:"messages"`
}

type fieldSpec struct {
	Tag    uint32            `yaml:"tag"`
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Values map[string]string `yaml:"values"`
}

type fieldRefSpec struct {
	Tag      uint32 `yaml:"tag"`
	Required bool   `yaml:"required"`
}

type messageSpec struct {
	Type     string         `yaml:"type"`
	Name     string         `yaml:"name"`
	Category string         `yaml:"category"`
	Body     []fieldRefSpec `yaml:"body"`
}

// buildDictionary 解析并校验一份字典定义。相同输入总是得到相同结果.
func buildDictionary(raw []byte) (*Dictionary, error) {
	var df dictionaryFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&df); err != nil {
		return nil, fmt.Errorf("decode dictionary: %w", err)
	}
	if df.Version == "" {
		return nil, fmt.Errorf("dictionary without version")
	}

	d := &Dictionary{
		version:  df.Version,
		fields:   make(map[Tag]*FieldMeta, len(df.Fields)),
		names:    make(map[string]*FieldMeta, len(df.Fields)),
		messages: make(map[string]*MessageLayout, len(df.Messages)),
	}

	for _, f := range df.Fields {
		tag := Tag(f.Tag)
		if _, dup := d.fields[tag]; dup {
			return nil, fmt.Errorf("%s: field %d declared twice", df.Version, f.Tag)
		}
		if _, dup := d.names[f.Name]; dup || f.Name == "" {
			return nil, fmt.Errorf("%s: field %d has empty or duplicate name %q", df.Version, f.Tag, f.Name)
		}
		ft := FieldType(f.Type)
		if _, ok := knownTypes[ft]; !ok {
			return nil, fmt.Errorf("%s: field %s has unknown type %q", df.Version, f.Name, f.Type)
		}
		meta := &FieldMeta{Tag: tag, Name: f.Name, Type: ft, Values: f.Values}
		d.fields[tag] = meta
		d.names[f.Name] = meta
	}

	refs := func(where string, specs []fieldRefSpec, seen map[Tag]string) ([]FieldRef, error) {
		out := make([]FieldRef, 0, len(specs))
		for _, r := range specs {
			tag := Tag(r.Tag)
			if _, ok := d.fields[tag]; !ok {
				return nil, fmt.Errorf("%s: %s references undefined field %d", df.Version, where, r.Tag)
			}
			if prev, dup := seen[tag]; dup {
				return nil, fmt.Errorf("%s: field %d appears in both %s and %s", df.Version, r.Tag, prev, where)
			}
			seen[tag] = where
			out = append(out, FieldRef{Tag: tag, Required: r.Required})
		}
		return out, nil
	}

	envelope := make(map[Tag]string)
	header, err := refs("header", df.Header, envelope)
	if err != nil {
		return nil, err
	}
	trailer, err := refs("trailer", df.Trailer, envelope)
	if err != nil {
		return nil, err
	}
	d.standard = newLayout("", "StandardMessage", "", header, nil, trailer)

	for _, m := range df.Messages {
		if m.Type == "" {
			return nil, fmt.Errorf("%s: message %q without type", df.Version, m.Name)
		}
		if _, dup := d.messages[m.Type]; dup {
			return nil, fmt.Errorf("%s: message type %q declared twice", df.Version, m.Type)
		}
		seen := make(map[Tag]string, len(envelope)+len(m.Body))
		for tag, where := range envelope {
			seen[tag] = where
		}
		body, err := refs("message "+m.Name, m.Body, seen)
		if err != nil {
			return nil, err
		}
		d.messages[m.Type] = newLayout(m.Type, m.Name, m.Category, header, body, trailer)
	}

	return d, nil
}

var (
	registryOnce sync.Once
	registry     map[string]*Dictionary
	registryErr  error
)

func loadRegistry() {
	files, err := fs.Glob(dictionaryFS, "dictionaries/*.yaml")
	if err != nil {
		registryErr = err
		return
	}
	loaded := make(map[string]*Dictionary, len(files))
	for _, name := range files {
		raw, err := dictionaryFS.ReadFile(name)
		if err != nil {
			registryErr = fmt.Errorf("read %s: %w", name, err)
			return
		}
		d, err := buildDictionary(raw)
		if err != nil {
			registryErr = fmt.Errorf("%s: %w", name, err)
			return
		}
		if _, dup := loaded[d.version]; dup {
			registryErr = fmt.Errorf("%s: version %s already loaded", name, d.version)
			return
		}
		loaded[d.version] = d
	}
	registry = loaded
}

// LoadDictionary 返回指定版本的字典。字典在进程内只构建一次并以只读方式共享.
// 不支持的版本返回 ErrDictionaryVersionUnsupported，调用方应在启动阶段终止.
func LoadDictionary(version string) (*Dictionary, error) {
	registryOnce.Do(loadRegistry)
	if registryErr != nil {
		return nil, registryErr
	}
	d, ok := registry[version]
	if !ok {
		return nil, newError(KindDictionaryVersionUnsupported, "version %q (supported: %v)", version, SupportedVersions())
	}
	return d, nil
}

// MustLoadDictionary 同 LoadDictionary，失败时 panic.
func MustLoadDictionary(version string) *Dictionary {
	d, err := LoadDictionary(version)
	if err != nil {
		panic(err)
	}
	return d
}

// SupportedVersions 返回内置字典的版本列表.
func SupportedVersions() []string {
	registryOnce.Do(loadRegistry)
	versions := make([]string, 0, len(registry))
	for v := range registry {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// LookupMessageType 在指定版本的字典中查找报文布局.
func LookupMessageType(version, msgType string) (*MessageLayout, error) {
	d, err := LoadDictionary(version)
	if err != nil {
		return nil, err
	}
	l, ok := d.MessageLayout(msgType)
	if !ok {
		return nil, newError(KindUnknownMessageType, "%s has no layout for MsgType %q", version, msgType)
	}
	return l, nil
}
