// Package address converts between the address encodings used along the bridge route.
package address

import (
	"bytes"
	"strings"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/ethereum/go-ethereum/common"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	paddedLength = 32
	evmLength    = common.AddressLength
	padding      = paddedLength - evmLength
)

// ConvertBech32Prefix re-encodes the payload of a bech32 address under prefix.
// An address that already carries prefix is returned unchanged.
func ConvertBech32Prefix(address, prefix string) (string, error) {
	hrp, bz, err := bech32.DecodeAndConvert(address)
	if err != nil {
		return "", types.Validationf("invalid bech32 address %q: %v", address, err)
	}
	if hrp == prefix {
		return address, nil
	}
	out, err := bech32.ConvertAndEncode(prefix, bz)
	if err != nil {
		return "", types.Validationf("unable to encode address with prefix %q: %v", prefix, err)
	}
	return out, nil
}

// PadEVMAddress left pads a 20 byte EVM address with 12 zero bytes, the recipient
// format CCTP expects for chains whose native addresses are not 32 bytes.
func PadEVMAddress(address string) ([]byte, error) {
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return nil, types.Validationf("evm address %q must be 0x prefixed", address)
	}
	if !common.IsHexAddress(address) {
		return nil, types.Validationf("malformed evm address %q", address)
	}
	return common.LeftPadBytes(common.HexToAddress(address).Bytes(), paddedLength), nil
}

// UnpadEVMAddress strips the 12 leading zero bytes of a padded recipient.
func UnpadEVMAddress(bz []byte) (common.Address, error) {
	if len(bz) != paddedLength {
		return common.Address{}, types.Validationf("padded address must be %d bytes, got %d", paddedLength, len(bz))
	}
	if !bytes.Equal(bz[:padding], make([]byte, padding)) {
		return common.Address{}, types.Validationf("padded address has non-zero prefix %x", bz[:padding])
	}
	return common.BytesToAddress(bz[padding:]), nil
}

// UnpadBech32 transforms a padded cosmos recipient into a bech32 address
// left padded input -> bech32 output
func UnpadBech32(prefix string, bz []byte) (string, error) {
	if len(bz) != paddedLength {
		return "", types.Validationf("padded address must be %d bytes, got %d", paddedLength, len(bz))
	}
	out, err := bech32.ConvertAndEncode(prefix, bz[padding:])
	if err != nil {
		return "", types.Validationf("unable to encode padded address: %v", err)
	}
	return out, nil
}
