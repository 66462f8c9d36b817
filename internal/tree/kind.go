package tree

import "fmt"

// Kind is the declared type of a stored value. The set is closed: kinds the
// store reports that are not modeled here map to KindUnknown.
type Kind int

const (
	// KindNone is a value with no data.
	KindNone Kind = iota
	// KindBinary is a raw byte sequence.
	KindBinary
	// KindInt32 is a signed 32-bit integer (DWORD).
	KindInt32
	// KindInt64 is a signed 64-bit integer (QWORD).
	KindInt64
	// KindString is a plain string.
	KindString
	// KindExpandableString is a string containing unexpanded environment references.
	KindExpandableString
	// KindMultiString is an ordered sequence of strings.
	KindMultiString
	// KindUnknown covers every store kind not listed above.
	KindUnknown
)

var kindNames = [...]string{
	KindNone:             "None",
	KindBinary:           "Binary",
	KindInt32:            "Int32",
	KindInt64:            "Int64",
	KindString:           "String",
	KindExpandableString: "ExpandableString",
	KindMultiString:      "MultiString",
	KindUnknown:          "Unknown",
}

// String returns the name used for the kind in documents.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Valid reports whether k is one of the enumerated kinds.
func (k Kind) Valid() bool {
	return k >= KindNone && k <= KindUnknown
}

// ParseKind maps a document kind name back to a Kind. Names that are not
// recognised yield KindUnknown so that documents written by newer versions
// still load.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return Kind(k)
		}
	}
	// Registry-native spellings written by other tools.
	switch name {
	case "DWord":
		return KindInt32
	case "QWord":
		return KindInt64
	case "ExpandString":
		return KindExpandableString
	}
	return KindUnknown
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	*k = ParseKind(string(text))
	return nil
}
