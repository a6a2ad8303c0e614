package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/ironclaw/core/internal/keys"
	"github.com/ironclaw/core/internal/secrets"
)

// TransferSigningTool adapts the secrets/signing core (internal/keys,
// internal/secrets) to the Tool interface, the same way SandboxedTool
// adapts a sandbox guest: one capability, checked before it runs. A
// transfer request is authorized against the daily spend cap before any
// key material is touched, and the signature is produced over a
// caller-supplied payload hash rather than a raw private key export, so
// a malicious caller can request a signature but never the seed itself.
type TransferSigningTool struct {
	store       secrets.Store
	policy      *keys.TransferPolicy
	userID      string
	keyLabel    string
	description string
	schema      json.RawMessage
}

// NewTransferSigningTool builds the "sign_transfer" tool for userID,
// signing with the secret stored under "near_key:<keyLabel>" and gating
// every call through policy.
func NewTransferSigningTool(store secrets.Store, policy *keys.TransferPolicy, userID, keyLabel string) *TransferSigningTool {
	return &TransferSigningTool{
		store:       store,
		policy:      policy,
		userID:      userID,
		keyLabel:    keyLabel,
		description: "Authorize and sign an outbound value transfer, subject to the daily spend cap.",
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"payload_hash_b64": {"type": "string", "description": "base64-encoded 32-byte hash to sign"},
				"derivation_path": {"type": "string", "description": "chain-signatures derivation path for the signing request"},
				"value_yocto": {"type": "string", "description": "transfer amount in yoctoNEAR as a decimal string"},
				"description": {"type": "string", "description": "human-readable reason for the transfer, recorded in the audit trail"},
				"tx_hash": {"type": "string", "description": "transaction hash this signature will be attached to, for audit correlation"}
			},
			"required": ["payload_hash_b64", "derivation_path", "value_yocto"]
		}`),
	}
}

func (t *TransferSigningTool) Name() string            { return "sign_transfer" }
func (t *TransferSigningTool) Description() string     { return t.description }
func (t *TransferSigningTool) Schema() json.RawMessage { return t.schema }

type signTransferParams struct {
	PayloadHashB64 string `json:"payload_hash_b64"`
	DerivationPath string `json:"derivation_path"`
	ValueYocto     string `json:"value_yocto"`
	Description    string `json:"description"`
	TxHash         string `json:"tx_hash"`
}

// Execute authorizes the transfer against the daily cap, then signs the
// supplied hash. The chain-signatures action built here is a payload for
// the caller to submit on-chain, not submitted by this tool itself —
// submission crosses a network boundary this module doesn't own.
func (t *TransferSigningTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var p signTransferParams
	if err := json.Unmarshal(params, &p); err != nil {
		return &ToolResult{Content: "invalid parameters: " + err.Error(), IsError: true}, nil
	}

	if err := t.policy.Authorize(ctx, p.ValueYocto, p.Description, p.TxHash); err != nil {
		return &ToolResult{Content: "transfer denied: " + err.Error(), IsError: true}, nil
	}

	hashBytes, err := base64.StdEncoding.DecodeString(p.PayloadHashB64)
	if err != nil || len(hashBytes) != 32 {
		return &ToolResult{Content: "payload_hash_b64 must decode to exactly 32 bytes", IsError: true}, nil
	}
	var hash [32]byte
	copy(hash[:], hashBytes)

	action, err := keys.BuildChainSignatureAction(hashBytes, p.DerivationPath)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}

	sig, err := keys.SignHash(ctx, t.store, t.userID, t.keyLabel, hash)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}

	out, err := json.Marshal(struct {
		SignatureB64 string                  `json:"signature_b64"`
		ChainSigCall keys.FunctionCallAction `json:"chain_signature_call"`
	}{
		SignatureB64: base64.StdEncoding.EncodeToString(sig[:]),
		ChainSigCall: action,
	})
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}

	return &ToolResult{Content: string(out)}, nil
}

var _ Tool = (*TransferSigningTool)(nil)
