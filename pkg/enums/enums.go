// Package enums holds the closed string sets persisted in the database and
// exposed over the API. Their string values are part of the wire contract.
package enums

import (
	"fmt"
	"slices"
)

func parse[T ~string](kind, raw, normalized string, valid []T) (T, error) {
	if v := T(normalized); slices.Contains(valid, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
