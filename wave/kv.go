package wave

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// Pair is one key/value token extracted from a device response line.
// Bare keys (no '=' and value) carry an empty Value.
type Pair struct {
	Key   string
	Value string
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\v' || c == '\f'
}

// SplitPairs extracts the ordered key/value tokens from a response line.
//
// A key is a maximal run of non-whitespace, non-'=' bytes, optionally
// followed by '=' (whitespace allowed on either side) and a maximal run of
// non-whitespace bytes as its value. Keys without a value are kept with an
// empty Value, so stray tokens in a line degrade to zero values downstream
// instead of breaking the parse.
func SplitPairs(line []byte) []Pair {
	pairs := make([]Pair, 0, 12)

	i := 0
	n := len(line)
	for i < n {
		// seek key start
		for i < n && (isSpace(line[i]) || line[i] == '=') {
			i++
		}
		if i >= n {
			break
		}

		keyStart := i
		for i < n && !isSpace(line[i]) && line[i] != '=' {
			i++
		}
		key := string(line[keyStart:i])

		// optional "= value"
		j := i
		for j < n && isSpace(line[j]) {
			j++
		}
		if j >= n || line[j] != '=' {
			pairs = append(pairs, Pair{Key: key})
			i = j
			continue
		}
		j++ // consume '='
		for j < n && isSpace(line[j]) {
			j++
		}
		valStart := j
		for j < n && !isSpace(line[j]) {
			j++
		}
		if j == valStart { // '=' with nothing behind it, treat as bare key
			pairs = append(pairs, Pair{Key: key})
		} else {
			pairs = append(pairs, Pair{Key: key, Value: string(line[valStart:j])})
		}
		i = j
	}

	if len(pairs) == 0 {
		return nil
	}

	return pairs
}

// Fields parses a response line into a key to value map.
// The last occurrence of a duplicate key wins.
func Fields(line []byte) map[string]string {
	pairs := SplitPairs(line)
	fields := make(map[string]string, len(pairs))
	for _, p := range pairs {
		fields[p.Key] = p.Value
	}

	return fields
}

// LinesToMap parses a multi-line key=value response block, as returned by the
// get_info, get_status and get_setup commands, into a map.
//
// Each line holds at most one "key=value" assignment; lines without '=' are
// kept as bare keys with an empty value. Keys and values are trimmed. The
// last occurrence of a duplicate key wins. Unknown keys are retained so
// callers can pick out the fields they understand.
func LinesToMap(lines [][]byte) map[string]string {
	out := make(map[string]string, len(lines))
	for _, line := range lines {
		key, value, _ := bytes.Cut(line, []byte{'='})
		k := strings.TrimSpace(string(key))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(string(value))
	}

	return out
}

// AsInt parses the leading whitespace-delimited token of s as an integer.
// Values may carry trailing unit suffixes ("27 degC" yields 27). It returns
// def if the token is empty or not a number.
func AsInt(s string, def int) int {
	tok, _, _ := strings.Cut(strings.TrimSpace(s), " ")
	if tok == "" {
		return def
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return def
	}

	return v
}

// AsFloat parses the leading whitespace-delimited token of s as a float.
// Values may carry trailing unit suffixes ("1000 ms" yields 1000). It returns
// def if the token is empty or not a number.
func AsFloat(s string, def float64) float64 {
	tok, _, _ := strings.Cut(strings.TrimSpace(s), " ")
	if tok == "" {
		return def
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return def
	}

	return v
}

// Matches the filter row of a get_setup block, e.g.
//
//	10.5-350 kHz, order 4
//	10.5-none kHz, order 4
//	none-350 kHz, order 4
//	none-none kHz, order 0
var filterPattern = regexp.MustCompile(`(?i)^\s*(\S+)\s*-\s*(\S+)\s+.*o(?:rder)?\D*(\d)`)

// ParseFilter parses the filter description row of a get_setup response.
//
// It returns the highpass and lowpass frequencies in Hz and the filter order.
// A frequency of "none" means the filter stage is disabled and yields nil.
// Input that does not match the expected shape yields (nil, nil, 0).
func ParseFilter(line string) (highpassHz, lowpassHz *float64, order int) {
	m := filterPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, nil, 0
	}

	hzOrNil := func(tok string) *float64 {
		khz, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil
		}
		hz := khz * 1e3
		return &hz
	}

	order, _ = strconv.Atoi(m[3])

	return hzOrNil(m[1]), hzOrNil(m[2]), order
}
