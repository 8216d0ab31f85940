package topology

import (
	"strconv"
	"strings"
)

// ClassfulPrefix derives the class A/B/C network prefix of a dotted IPv4 address.
//
//	1-127   -> "a"
//	128-191 -> "a.b"
//	192-223 -> "a.b.c"
//
// Anything else, including multicast and broadcast space, is a *ClassificationError.
func ClassfulPrefix(address string) (string, error) {
	octets := strings.Split(address, ".")
	if len(octets) != 4 {
		return "", &ClassificationError{Address: address, Reason: "not a dotted IPv4 address"}
	}
	for _, o := range octets {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 || n > 255 {
			return "", &ClassificationError{Address: address, Reason: "octet out of range"}
		}
	}

	first, _ := strconv.Atoi(octets[0])
	switch {
	case first >= 1 && first <= 127:
		return octets[0], nil
	case first >= 128 && first <= 191:
		return strings.Join(octets[:2], "."), nil
	case first >= 192 && first <= 223:
		return strings.Join(octets[:3], "."), nil
	default:
		return "", &ClassificationError{Address: address, Reason: "first octet outside class A/B/C"}
	}
}

// Classifier memoizes prefix to subnetwork index for one run. Subnetwork indices
// come from the shared device registry.
type Classifier struct {
	registry *Registry
	prefixes map[string]int
}

func NewClassifier(registry *Registry) *Classifier {
	return &Classifier{registry: registry, prefixes: make(map[string]int)}
}

// Classify returns the subnetwork index for address and whether it was created by this call.
func (c *Classifier) Classify(address string) (index int, prefix string, created bool, err error) {
	prefix, err = ClassfulPrefix(address)
	if err != nil {
		return 0, "", false, err
	}
	if idx, ok := c.prefixes[prefix]; ok {
		return idx, prefix, false, nil
	}
	idx := c.registry.Resolve(prefix)
	c.prefixes[prefix] = idx
	return idx, prefix, true, nil
}

// IsSubnetwork reports whether idx was handed out for a prefix.
func (c *Classifier) IsSubnetwork(idx int) bool {
	got, ok := c.prefixes[c.registry.Identifier(idx)]
	return ok && got == idx
}

// Len returns the number of distinct prefixes seen.
func (c *Classifier) Len() int {
	return len(c.prefixes)
}
