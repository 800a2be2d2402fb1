package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset  = "\x1b[0m"
	colorBold   = "\x1b[1m"
	colorTime   = "\x1b[38;5;107m"
	colorName   = "\x1b[38;5;208m"
	colorKey    = "\x1b[38;5;65m"
	colorGreen  = "\x1b[38;5;108m"
	colorYellow = "\x1b[38;5;179m"
	colorRed    = "\x1b[38;5;167m"
	colorRedBg  = "\x1b[48;5;52m"
)

var bufferPool = buffer.NewPool()

// minimalEncoder renders one calm line per entry:
//
//	15:04:05  WARN  executor  phase concluded  project=akka phase=compile status=ERROR
//
// Context fields attached with With() are kept in the embedded map encoder
// and printed before the entry's own fields.
type minimalEncoder struct {
	*zapcore.MapObjectEncoder
	color bool
}

func newMinimalEncoder(color bool) *minimalEncoder {
	return &minimalEncoder{
		MapObjectEncoder: zapcore.NewMapObjectEncoder(),
		color:            color,
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	clone := newMinimalEncoder(enc.color)
	for k, v := range enc.Fields {
		clone.Fields[k] = v
	}
	return clone
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := bufferPool.Get()

	final.AppendString(enc.paint(colorTime, ent.Time.Format("15:04:05")))

	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(enc.level(ent.Level))
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(enc.paint(colorName, ent.LoggerName))
	}

	final.AppendString("  ")
	final.AppendString(ent.Message)

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		final.AppendString(" ")
		final.AppendString(enc.pair(k, enc.Fields[k]))
	}

	entryFields := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(entryFields)
		final.AppendString(" ")
		final.AppendString(enc.pair(f.Key, entryFields.Fields[f.Key]))
	}

	final.AppendString("\n")
	return final, nil
}

func (enc *minimalEncoder) pair(key string, value interface{}) string {
	text := fmt.Sprintf("%v", value)
	if key == FieldStatus {
		text = enc.paint(statusColor(text), text)
	}
	return enc.paint(colorKey, key+"=") + text
}

func (enc *minimalEncoder) level(level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return enc.paint(colorBold+colorYellow, "WARN")
	case zapcore.DebugLevel:
		return "DEBUG"
	default:
		return enc.paint(colorBold+colorRedBg+colorRed, level.CapitalString())
	}
}

func (enc *minimalEncoder) paint(color, text string) string {
	if !enc.color {
		return text
	}
	return color + text + colorReset
}

// statusColor colours report status keywords
func statusColor(status string) string {
	switch strings.ToUpper(status) {
	case "SUCCESS":
		return colorGreen
	case "PARTIAL", "UNCOMMITTED":
		return colorYellow
	case "ERROR":
		return colorRed
	default:
		return ""
	}
}
