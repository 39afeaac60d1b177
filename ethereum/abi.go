package ethereum

import (
	"bytes"
	"embed"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

//go:embed abi/MessageTransmitter.json abi/ERC20.json
var content embed.FS

var (
	messageTransmitterABI = mustLoadABI("abi/MessageTransmitter.json")
	erc20ABI              = mustLoadABI("abi/ERC20.json")
)

func mustLoadABI(path string) abi.ABI {
	bz, err := content.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("unable to read %s: %v", path, err))
	}
	parsed, err := abi.JSON(bytes.NewReader(bz))
	if err != nil {
		panic(fmt.Sprintf("unable to parse %s: %v", path, err))
	}
	return parsed
}

// ReceiveMessageCalldata packs MessageTransmitter.receiveMessage(message, attestation).
func ReceiveMessageCalldata(message, attestation []byte) ([]byte, error) {
	return messageTransmitterABI.Pack("receiveMessage", message, attestation)
}

// TransferCalldata packs ERC20.transfer(to, amount).
func TransferCalldata(to common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, amount)
}

// UsedNonceKey is the MessageTransmitter usedNonces key for a source domain and nonce.
func UsedNonceKey(sourceDomain uint32, nonce uint64) [32]byte {
	key := append(
		common.LeftPadBytes(new(big.Int).SetUint64(uint64(sourceDomain)).Bytes(), 4),
		common.LeftPadBytes(new(big.Int).SetUint64(nonce).Bytes(), 8)...,
	)
	return [32]byte(crypto.Keccak256(key))
}
