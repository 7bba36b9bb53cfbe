package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adarwoo/ulogger"
	"github.com/adarwoo/ulogger/internal/typecode"
)

// renderEntry expands a LogEntry's format template against its decoded
// args and returns one printable line. Placeholders are "{}" (default
// formatting) and "{:NNx}" (zero-padded lowercase hex, NN digits wide),
// matching the firmware's original_source format-string convention.
func renderEntry(e ulogger.LogEntry) string {
	if e.Incomplete {
		return fmt.Sprintf("%s:%d: <incomplete: %d arg(s) received>", e.Site.Filename, e.Site.Line, e.IncompleteN)
	}

	body := expandFormat(e.Site.Format, e.Args)
	return fmt.Sprintf("%s:%d: %s", e.Site.Filename, e.Site.Line, body)
}

func expandFormat(format string, args []typecode.Value) string {
	var b strings.Builder
	argIdx := 0

	for i := 0; i < len(format); i++ {
		if format[i] != '{' {
			b.WriteByte(format[i])
			continue
		}
		end := strings.IndexByte(format[i:], '}')
		if end < 0 {
			b.WriteString(format[i:])
			break
		}
		spec := format[i+1 : i+end]
		i += end

		if argIdx >= len(args) {
			b.WriteString("{?}")
			continue
		}
		b.WriteString(formatValue(args[argIdx], spec))
		argIdx++
	}

	return b.String()
}

// formatValue renders one argument per spec, an empty string for plain
// "{}" or ":NNx" for zero-padded hex NN digits wide.
func formatValue(v typecode.Value, spec string) string {
	if strings.HasSuffix(spec, "x") {
		widthStr := strings.TrimSuffix(strings.TrimPrefix(spec, ":"), "x")
		width, err := strconv.Atoi(widthStr)
		if err != nil {
			width = 0
		}
		return fmt.Sprintf("%0*x", width, v.U64)
	}

	switch v.Code {
	case typecode.B8:
		return strconv.FormatBool(v.Bool)
	case typecode.Float32:
		return strconv.FormatFloat(float64(v.F32), 'g', -1, 32)
	case typecode.Str:
		return v.Str
	case typecode.S8, typecode.S16, typecode.S32:
		return strconv.FormatInt(v.I64, 10)
	default:
		return strconv.FormatUint(v.U64, 10)
	}
}
