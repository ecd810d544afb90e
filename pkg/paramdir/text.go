package paramdir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/evonode/evcan/pkg/wire"
)

// RenderParam formats parameter p as one line of the node's INI-style
// text representation, mirroring LC_PrintParam.
func RenderParam(p *Parameter) string {
	if p.ParamType.Base() == wire.ParamDir {
		return fmt.Sprintf("\n[%s]\n", p.Name)
	}
	return formatValueLine(p.Name, p.ParamType, p.Formatting, p.Decimal, GetValue(p))
}

// RenderRemoteValue formats r, a previously-fetched remote parameter's
// cached value, the same way RenderParam formats a local Parameter. Unlike
// Parameter, RemoteValue carries its value directly in r.Value rather than
// behind a Ptr, since it has nothing local to bind to.
func RenderRemoteValue(r *RemoteValue) string {
	if r.ParamType.Base() == wire.ParamDir {
		return fmt.Sprintf("\n[%s]\n", r.Name)
	}
	return formatValueLine(r.Name, r.ParamType, r.Formatting, r.Decimal, r.Value)
}

func formatValueLine(name string, paramType wire.ParamType, formatting string, decimal uint8, val int32) string {
	switch paramType.Base() {
	case wire.ParamEnum:
		if label := enumLabel(formatting, val); label != "" {
			return fmt.Sprintf("%s = %s\n", name, label)
		}
		return fmt.Sprintf("%s = %d\n", name, val)
	case wire.ParamValue:
		if decimal > 0 {
			scale := pow10int(decimal)
			return fmt.Sprintf("%s = %d.%d\n", name, val/scale, abs32(val%scale))
		}
		return fmt.Sprintf("%s = %d\n", name, val)
	case wire.ParamBool:
		if val != 0 {
			return fmt.Sprintf("%s = ON\n", name)
		}
		return fmt.Sprintf("%s = OFF\n", name)
	default:
		return ""
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func pow10int(decimal uint8) int32 {
	r := int32(1)
	for i := uint8(0); i < decimal; i++ {
		r *= 10
	}
	return r
}

// enumLabel returns the val'th newline-separated entry of formatting, or
// "" if val is out of range.
func enumLabel(formatting string, val int32) string {
	if val < 0 || formatting == "" {
		return ""
	}
	entries := strings.Split(formatting, "\n")
	if int(val) >= len(entries) {
		return ""
	}
	return entries[val]
}

func skipSpaces(s string) string { return strings.TrimLeft(s, " \t\n\r\v\f") }

// ParseValueFromString parses a candidate value for parameter p out of s,
// mirroring LC_GetParameterValueFromStr.
//
// For enum and bool parameters this preserves a bug in the original: the
// loop meant to walk Formatting's newline-separated entries counting up
// to a textual match never advances its loop index (the body that would
// have done so is dead code), so the match always resolves to entry 0
// rather than actually searching Formatting. The design notes call this
// out as a known limitation to preserve, not fix, so here it always
// succeeds with value 0 rather than ever matching a later entry.
func ParseValueFromString(p *Parameter, s string) (int32, error) {
	base := p.ParamType.Base()
	if base == wire.ParamEnum || base == wire.ParamBool {
		if 0 > p.Max || 0 < p.Min {
			return 0, ErrOutOfRange
		}
		return 0, nil
	}

	s = skipSpaces(s)
	if cut := strings.IndexAny(s, "#\n\r"); cut >= 0 {
		s = s[:cut]
	}
	s = strings.TrimSpace(s)

	var scaled int32
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		scaled = int32(f * float64(pow10int(p.Decimal)))
	} else {
		i, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return 0, err
		}
		scaled = int32(i) * pow10int(p.Decimal)
	}
	if scaled > p.Max || scaled < p.Min {
		return 0, ErrOutOfRange
	}
	return scaled, nil
}

// IsDirectory returns the index of the directory whose name prefixes s,
// or -1, mirroring LC_IsDirectory.
func IsDirectory(table *Table, s string) int {
	for i := range table.Directories {
		name := table.Directories[i].Name
		if name != "" && strings.HasPrefix(s, name) {
			return i
		}
	}
	return -1
}

// IsParameter returns the index within directory whose name prefixes s,
// or -1. Index 0 is never scanned: it is reserved for the directory's own
// entry, mirroring LC_IsParameter.
func IsParameter(table *Table, s string, directory uint8) int {
	if int(directory) >= len(table.Directories) {
		return -1
	}
	params := table.Directories[directory].Parameters
	for i := 1; i < len(params); i++ {
		if params[i].Name != "" && strings.HasPrefix(s, params[i].Name) {
			return i
		}
	}
	return -1
}

func remainderAfterLine(s string) string {
	nl := strings.IndexAny(s, "\n\r")
	if nl < 0 {
		return ""
	}
	return s[nl:]
}

// ParseLine parses one line of INI-style config text against table,
// mirroring LC_ParseParameterLine. dir and index carry parser state
// across calls (a "[Section]" line updates dir and resets index to 0; a
// successfully parsed "name = value" line sets index to the parsed
// parameter's index and applies the parsed value via SetValue; a value
// parse failure sets index to -1). Returns the remaining
// text, positioned at the next line.
func ParseLine(table *Table, line string, dir, index *int) string {
	trimmed := skipSpaces(line)
	lineEnd := strings.IndexAny(trimmed, "\n\r")
	thisLine := trimmed
	if lineEnd >= 0 {
		thisLine = trimmed[:lineEnd]
	}

	if len(thisLine) == 0 {
		return remainderAfterLine(trimmed)
	}

	switch {
	case thisLine[0] == '[':
		name := strings.TrimLeft(thisLine[1:], " \t")
		if end := strings.IndexByte(name, ']'); end >= 0 {
			name = name[:end]
		}
		if found := IsDirectory(table, name); found >= 0 {
			*dir = found
			*index = 0
		}
	case *dir >= 0 && thisLine[0] != '#':
		// Stop at whichever of '#'/'=' comes first, mirroring
		// strcspn(line, "#=\n\r"): a '#' before any '=' makes the rest of
		// the line a comment, not an assignment, even if an '=' appears
		// later (e.g. "Gain #=7").
		eq := strings.IndexByte(thisLine, '=')
		if hash := strings.IndexByte(thisLine, '#'); hash >= 0 && (eq < 0 || hash < eq) {
			eq = -1
		}
		if eq >= 0 {
			id := IsParameter(table, thisLine[:eq], uint8(*dir))
			if id > 0 {
				param := &table.Directories[*dir].Parameters[id]
				value, err := ParseValueFromString(param, thisLine[eq+1:])
				if err != nil {
					*index = -1
				} else {
					_ = SetValue(param, value)
					*index = id
				}
			}
		}
	}
	return remainderAfterLine(trimmed)
}
