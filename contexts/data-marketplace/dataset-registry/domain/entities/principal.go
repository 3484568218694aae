package entities

import (
	"strings"

	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Principal is an authenticated account address in lowercase 0x-prefixed hex.
// Two spellings of the same address always normalize to the same Principal.
type Principal string

func ParsePrincipal(raw string) (Principal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", &domainerrors.ValidationError{Field: "principal", Reason: "is required"}
	}
	if !common.IsHexAddress(value) {
		return "", &domainerrors.ValidationError{Field: "principal", Reason: "must be a 20-byte hex address"}
	}
	return Principal(strings.ToLower(common.HexToAddress(value).Hex())), nil
}

func (p Principal) Address() common.Address {
	return common.HexToAddress(string(p))
}

func (p Principal) String() string {
	return string(p)
}
