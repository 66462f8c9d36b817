// Package codec converts typed store values to and from their canonical
// string representation.
//
// The mapping between a Kind and its Go typed value is:
//
//	KindNone              nil
//	KindBinary            []byte    (standard padded base64)
//	KindInt32             int32     (signed decimal)
//	KindInt64             int64     (signed decimal)
//	KindString            string    (verbatim)
//	KindExpandableString  string    (verbatim)
//	KindMultiString       []string  (JSON array text)
//	KindUnknown           any       (generic JSON encoding)
//
// Serialize and Deserialize are exact inverses for every kind. A nil typed
// value always serializes to the absent representation, and an absent
// representation always deserializes to nil.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/regsync/regsync/internal/tree"
)

// ErrFormat is returned when a representation or a typed value does not
// match its declared kind.
var ErrFormat = errors.New("value does not match its kind")

// Serialize returns the representation of v under kind. A nil v yields a
// nil representation whatever the kind.
func Serialize(kind tree.Kind, v any) (*string, error) {
	if v == nil {
		return nil, nil
	}

	var (
		s   string
		err error
	)
	switch kind {
	case tree.KindNone:
		return nil, nil
	case tree.KindBinary:
		s, err = serializeBinary(v)
	case tree.KindInt32:
		s, err = serializeInt(v, 32)
	case tree.KindInt64:
		s, err = serializeInt(v, 64)
	case tree.KindString, tree.KindExpandableString:
		str, ok := v.(string)
		if !ok {
			return nil, mismatch(kind, v)
		}
		s = str
	case tree.KindMultiString:
		s, err = serializeMultiString(v)
	default:
		s, err = serializeGeneric(v)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, kind, err)
	}
	return &s, nil
}

// Deserialize returns the typed value encoded by rep under kind. A nil rep
// yields nil.
func Deserialize(kind tree.Kind, rep *string) (any, error) {
	if rep == nil {
		return nil, nil
	}
	s := *rep

	switch kind {
	case tree.KindNone:
		return nil, nil
	case tree.KindBinary:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, malformed(kind, s, err)
		}
		return b, nil
	case tree.KindInt32:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, malformed(kind, s, err)
		}
		return int32(n), nil
	case tree.KindInt64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, malformed(kind, s, err)
		}
		return n, nil
	case tree.KindString, tree.KindExpandableString:
		return s, nil
	case tree.KindMultiString:
		var parts []string
		if err := json.Unmarshal([]byte(s), &parts); err != nil {
			return nil, malformed(kind, s, err)
		}
		if parts == nil {
			parts = []string{}
		}
		return parts, nil
	default:
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, malformed(kind, s, err)
		}
		return v, nil
	}
}

func serializeBinary(v any) (string, error) {
	b, ok := v.([]byte)
	if !ok {
		return "", fmt.Errorf("unexpected %T", v)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// serializeInt accepts any integer type that fits the kind's width. DWORD
// backends hand back unsigned values; those are reinterpreted as signed so the
// representation round-trips through the signed parse.
func serializeInt(v any, bits int) (string, error) {
	var n int64
	switch x := v.(type) {
	case int32:
		n = int64(x)
	case int64:
		n = x
	case int:
		n = int64(x)
	case uint32:
		n = int64(int32(x))
	case uint64:
		if bits == 32 {
			if x > math.MaxUint32 {
				return "", fmt.Errorf("%d overflows 32 bits", x)
			}
			n = int64(int32(uint32(x)))
		} else {
			n = int64(x)
		}
	default:
		return "", fmt.Errorf("unexpected %T", v)
	}
	if bits == 32 && (n < math.MinInt32 || n > math.MaxInt32) {
		return "", fmt.Errorf("%d overflows 32 bits", n)
	}
	return strconv.FormatInt(n, 10), nil
}

func serializeMultiString(v any) (string, error) {
	parts, ok := v.([]string)
	if !ok {
		return "", fmt.Errorf("unexpected %T", v)
	}
	if parts == nil {
		parts = []string{}
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func serializeGeneric(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func mismatch(kind tree.Kind, v any) error {
	return fmt.Errorf("%w: %s cannot hold %T", ErrFormat, kind, v)
}

func malformed(kind tree.Kind, s string, err error) error {
	return fmt.Errorf("%w: %q is not a valid %s: %v", ErrFormat, s, kind, err)
}
