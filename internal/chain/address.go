package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidAddress reports whether input is a well-formed hex account address.
func ValidAddress(input string) bool {
	return common.IsHexAddress(strings.TrimSpace(input))
}

// ParseAddress converts a hex address into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, input)
	}
	return common.HexToAddress(input), nil
}
