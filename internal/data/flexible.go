package data

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexibleID accepts an identifier from the wire as either an integer id or
// a string (name, username, or "person-<digits>"). Resolution to a concrete
// id is done by the model that owns the entity.
type FlexibleID struct {
	set   bool
	isInt bool
	num   int
	str   string
}

func FlexibleInt(id int) FlexibleID { return FlexibleID{set: true, isInt: true, num: id} }

func FlexibleStr(raw string) FlexibleID {
	trimmed := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(trimmed); err == nil {
		return FlexibleInt(n)
	}
	return FlexibleID{set: true, str: trimmed}
}

func (f *FlexibleID) UnmarshalJSON(raw []byte) error {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		*f = FlexibleInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	*f = FlexibleStr(s)
	return nil
}

// IsSet reports whether any value was provided at all.
func (f FlexibleID) IsSet() bool { return f.set }

// Int returns the integer form when the input was numeric.
func (f FlexibleID) Int() (int, bool) {
	return f.num, f.set && f.isInt
}

// Str returns the string form when the input was not numeric.
func (f FlexibleID) Str() (string, bool) {
	if !f.set || f.isInt {
		return "", false
	}
	return f.str, true
}

// personDigits handles the "person-<digits>" alias.
func personDigits(raw string) (int, bool) {
	if !strings.HasPrefix(raw, "person-") {
		return 0, false
	}
	var digits strings.Builder
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, false
	}
	return n, true
}
