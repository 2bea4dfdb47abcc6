// Package ir provides the literal value types shared by every pgquery layer.
//
// This package contains type definitions and serialization only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// value model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Value is a closed variant: Null, Bool, Int, Float, Text, List, Object
//   - Row preserves column order so compiled SQL is deterministic
//   - MarshalCanonical (RFC 8785 + NFC) is the only input to hashing
package ir
