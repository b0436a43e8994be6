package service

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	identifierPrefix = "ORD"
	identifierWidth  = 3
)

// nextIdentifier derives the next display identifier from the most recently
// created order's identifier ("" when no order exists yet). The numeric
// suffix is zero-padded to identifierWidth but widens past it rather than
// truncating. A last identifier that does not parse as prefix+number is a
// data-integrity failure and is not recovered from.
func nextIdentifier(last string) (string, error) {
	if last == "" {
		return fmt.Sprintf("%s%0*d", identifierPrefix, identifierWidth, 1), nil
	}
	suffix, ok := strings.CutPrefix(last, identifierPrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMalformedIdentifier, last)
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return "", fmt.Errorf("%w: %q", ErrMalformedIdentifier, last)
	}
	return fmt.Sprintf("%s%0*d", identifierPrefix, identifierWidth, n+1), nil
}
