package maker

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Subset of the Sai Tub used to read CDPs and the risk parameters.
const tubABIJSON = `[
  {
    "constant": true,
    "inputs": [{"name": "", "type": "bytes32"}],
    "name": "cups",
    "outputs": [
      {"name": "lad", "type": "address"},
      {"name": "ink", "type": "uint256"},
      {"name": "art", "type": "uint256"},
      {"name": "ire", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {"constant": true, "inputs": [], "name": "tag", "outputs": [{"name": "wad", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"constant": true, "inputs": [], "name": "mat", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"constant": true, "inputs": [], "name": "per", "outputs": [{"name": "ray", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"constant": true, "inputs": [], "name": "pip", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
  {"constant": true, "inputs": [], "name": "vox", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

const pipABIJSON = `[
  {"constant": true, "inputs": [], "name": "read", "outputs": [{"name": "", "type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

const voxABIJSON = `[
  {"constant": false, "inputs": [], "name": "par", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	tubABI     abi.ABI
	tubABIOnce sync.Once
	tubABIErr  error
	pipABI     abi.ABI
	pipABIOnce sync.Once
	pipABIErr  error
	voxABI     abi.ABI
	voxABIOnce sync.Once
	voxABIErr  error
)

// TubABI returns the parsed Tub ABI.
func TubABI() (abi.ABI, error) {
	tubABIOnce.Do(func() {
		tubABI, tubABIErr = abi.JSON(strings.NewReader(tubABIJSON))
	})
	return tubABI, tubABIErr
}

// PipABI returns the parsed price feed ABI.
func PipABI() (abi.ABI, error) {
	pipABIOnce.Do(func() {
		pipABI, pipABIErr = abi.JSON(strings.NewReader(pipABIJSON))
	})
	return pipABI, pipABIErr
}

// VoxABI returns the parsed Vox ABI.
func VoxABI() (abi.ABI, error) {
	voxABIOnce.Do(func() {
		voxABI, voxABIErr = abi.JSON(strings.NewReader(voxABIJSON))
	})
	return voxABI, voxABIErr
}
