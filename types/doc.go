// Package types provides the primitive value types shared across the
// consensus core: hashes, recoverable signatures, public keys, validator
// addresses and the validator-set membership view.
//
// All fixed-size values are plain byte arrays, so they are comparable,
// copyable and safe to use as map keys. Constructors validate lengths for
// untrusted input; Must variants panic and are reserved for trusted data.
package types
