package escrow

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// The escrow contract surface is fixed: the compilation toolchain lives
// outside this system, so the ABI is pinned here and the deploy bytecode is
// loaded from a compiled artifact.
const contractABIJSON = `[
  {"inputs":[{"internalType":"address","name":"_owner","type":"address"},{"internalType":"address","name":"_customer","type":"address"},{"internalType":"uint256","name":"_amount","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"},
  {"inputs":[],"name":"customer","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"isPaid","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"isPickedUp","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"courier","type":"address"}],"name":"pickUp","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[],"name":"finaliseDelivery","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

func contractABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABIJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	return parsed, nil
}

// loadBytecode reads a solc .bin artifact: hex, optionally 0x-prefixed,
// with surrounding whitespace tolerated.
func loadBytecode(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract bytecode: %w", err)
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x")
	bytecode, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("contract bytecode is not valid hex: %w", err)
	}
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("contract bytecode is empty")
	}
	return bytecode, nil
}
