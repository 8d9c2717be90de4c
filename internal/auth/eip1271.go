package auth

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ContractCaller performs a read-only contract call on the configured
// chain. Used for EIP-1271 signature checks against smart accounts.
type ContractCaller interface {
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)
}

// isValidSignature(bytes32,bytes) selector; a valid signature echoes it
// back as the return value (the EIP-1271 magic value).
var eip1271Selector = []byte{0x16, 0x26, 0xba, 0x7e}

// RPCCaller is a minimal JSON-RPC eth_call client.
type RPCCaller struct {
	url    string
	client *http.Client
}

// NewRPCCaller creates a caller against the given JSON-RPC endpoint.
func NewRPCCaller(url string) *RPCCaller {
	return &RPCCaller{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CallContract issues eth_call against the latest block.
func (r *RPCCaller) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_call",
		Params: []interface{}{
			map[string]string{"to": to, "data": "0x" + hex.EncodeToString(data)},
			"latest",
		},
		ID: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal eth_call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build eth_call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("eth_call failed: %w", err)
	}
	defer resp.Body.Close()

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode eth_call response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("eth_call error %d: %s", out.Error.Code, out.Error.Message)
	}

	result, err := hex.DecodeString(strings.TrimPrefix(out.Result, "0x"))
	if err != nil {
		return nil, fmt.Errorf("eth_call returned non-hex result: %w", err)
	}
	return result, nil
}

// verifyEIP1271 asks a contract account whether it considers the signature
// valid for the EIP-191 hash of message.
func verifyEIP1271(ctx context.Context, caller ContractCaller, address, message, signature string) (bool, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return false, err
	}
	hash := personalHash(message)

	// ABI encoding of isValidSignature(bytes32 hash, bytes signature):
	// selector, hash, offset to bytes, bytes length, padded bytes.
	data := make([]byte, 0, 4+32+32+32+((len(sig)+31)/32)*32)
	data = append(data, eip1271Selector...)
	data = append(data, hash...)
	data = append(data, abiUint(64)...)
	data = append(data, abiUint(uint64(len(sig)))...)
	data = append(data, sig...)
	if pad := len(sig) % 32; pad != 0 {
		data = append(data, make([]byte, 32-pad)...)
	}

	result, err := caller.CallContract(ctx, address, data)
	if err != nil {
		return false, err
	}
	return len(result) >= 4 && bytes.Equal(result[:4], eip1271Selector), nil
}

func abiUint(v uint64) []byte {
	word := make([]byte, 32)
	for i := 0; i < 8; i++ {
		word[31-i] = byte(v >> (8 * i))
	}
	return word
}
