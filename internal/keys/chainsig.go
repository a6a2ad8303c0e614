package keys

import (
	"encoding/base64"
	"encoding/json"

	"github.com/ironclaw/core/internal/kerr"
)

// Contract addresses for the chain signatures MPC network.
const (
	ChainSignaturesContractMainnet = "v1.signer"
	ChainSignaturesContractTestnet = "v1.signer-prod.testnet"
)

const maxGas = uint64(300_000_000_000_000)
const oneYocto = "1"

// FunctionCallAction is the subset of a NEAR FunctionCall action this
// package needs to construct, independent of the full transaction
// builder elsewhere in the module.
type FunctionCallAction struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    string
}

type chainSigRequest struct {
	Request struct {
		Payload    []uint32 `json:"payload"`
		Path       string   `json:"path"`
		KeyVersion int      `json:"key_version"`
	} `json:"request"`
}

// BuildChainSignatureAction builds a FunctionCall against the "sign"
// method of the chain signatures MPC contract, requesting a signature
// over payload derived at derivation_path.
func BuildChainSignatureAction(payload []byte, derivationPath string) (FunctionCallAction, error) {
	req := chainSigRequest{}
	req.Request.Payload = make([]uint32, len(payload))
	for i, b := range payload {
		req.Request.Payload[i] = uint32(b)
	}
	req.Request.Path = derivationPath
	req.Request.KeyVersion = 0

	argsBytes, err := json.Marshal(req)
	if err != nil {
		return FunctionCallAction{}, kerr.New(kerr.Parsing, "failed to serialize chain sig args: %v", err)
	}

	return FunctionCallAction{
		MethodName: "sign",
		Args:       argsBytes,
		Gas:        maxGas,
		Deposit:    oneYocto,
	}, nil
}

// ChainSignatureResult is the MPC network's response to a sign request.
type ChainSignatureResult struct {
	BigR       string
	S          string
	RecoveryID *uint8
}

// ParseChainSignatureResult extracts a ChainSignatureResult from a NEAR
// transaction outcome's base64-encoded SuccessValue field.
func ParseChainSignatureResult(outcome map[string]any) (ChainSignatureResult, error) {
	raw, ok := outcome["SuccessValue"].(string)
	if !ok {
		return ChainSignatureResult{}, kerr.New(kerr.Parsing, "no SuccessValue in chain signature outcome")
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return ChainSignatureResult{}, kerr.New(kerr.Parsing, "failed to decode chain sig result: %v", err)
	}

	var parsed struct {
		BigR struct {
			AffinePoint string `json:"affine_point"`
		} `json:"big_r"`
		S struct {
			Scalar string `json:"scalar"`
		} `json:"s"`
		RecoveryID *uint8 `json:"recovery_id"`
	}
	if err := json.Unmarshal(decoded, &parsed); err != nil {
		return ChainSignatureResult{}, kerr.New(kerr.Parsing, "failed to parse chain sig result JSON: %v", err)
	}
	if parsed.BigR.AffinePoint == "" {
		return ChainSignatureResult{}, kerr.New(kerr.Parsing, "missing big_r.affine_point in chain sig result")
	}
	if parsed.S.Scalar == "" {
		return ChainSignatureResult{}, kerr.New(kerr.Parsing, "missing s.scalar in chain sig result")
	}

	return ChainSignatureResult{
		BigR:       parsed.BigR.AffinePoint,
		S:          parsed.S.Scalar,
		RecoveryID: parsed.RecoveryID,
	}, nil
}

// NearNetwork selects which NEAR network a contract address resolves
// against.
type NearNetwork string

const (
	NetworkMainnet NearNetwork = "mainnet"
	NetworkTestnet NearNetwork = "testnet"
)

// ChainSigContract returns the chain signatures contract address for a
// network, defaulting to testnet for anything other than mainnet.
func ChainSigContract(network NearNetwork) string {
	if network == NetworkMainnet {
		return ChainSignaturesContractMainnet
	}
	return ChainSignaturesContractTestnet
}
