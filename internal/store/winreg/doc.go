// Package winreg is the store backend for the Windows registry.
//
// Kinds map to registry value types as follows:
//
//	None              REG_NONE
//	Binary            REG_BINARY
//	Int32             REG_DWORD (bits reinterpreted as signed)
//	Int64             REG_QWORD (bits reinterpreted as signed)
//	String            REG_SZ
//	ExpandableString  REG_EXPAND_SZ (never expanded)
//	MultiString       REG_MULTI_SZ
//	Unknown           any other type, read as raw bytes
//
// Values of unknown type are written back as REG_BINARY, since the original
// type code is not part of the document.
//
// Change notifications use RegNotifyChangeKeyValue on the whole subtree.
// The package only builds on Windows.
package winreg
