package domain

import (
	"sort"
	"strings"
)

// keySeparator joins normalized medication names inside a canonical key.
const keySeparator = "|"

// Normalizer canonicalizes a medication name for cache and lookup keys.
type Normalizer interface {
	Normalize(name string) string
}

// NormalizerFunc adapts a plain function to the Normalizer interface.
type NormalizerFunc func(name string) string

// Normalize implements Normalizer.
func (f NormalizerFunc) Normalize(name string) string {
	return f(name)
}

// DefaultNormalizer trims, collapses inner whitespace and lower-cases a name.
// The key separator is treated as whitespace so names cannot forge extra parts.
var DefaultNormalizer Normalizer = NormalizerFunc(func(name string) string {
	name = strings.ReplaceAll(name, keySeparator, " ")
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
})

// CombinationKey builds the order-independent canonical key for a pair or triple.
// A nil normalizer falls back to DefaultNormalizer.
func CombinationKey(n Normalizer, medications ...string) string {
	if n == nil {
		n = DefaultNormalizer
	}
	parts := make([]string, 0, len(medications))
	for _, m := range medications {
		part := strings.ToLower(n.Normalize(m))
		parts = append(parts, strings.ReplaceAll(part, keySeparator, " "))
	}
	sort.Strings(parts)
	return strings.Join(parts, keySeparator)
}

// PairKey is CombinationKey for exactly two medications.
func PairKey(n Normalizer, a, b string) string {
	return CombinationKey(n, a, b)
}
