package protocol

import (
	"github.com/polycall-go/polycall/internal/auth"
	"github.com/polycall-go/polycall/internal/protocol/tlv"
)

// TokenField is the TLV field holding the bearer token inside an AUTH
// frame's payload, encoded the same way as any other string argument.
const TokenField = "token"

// EncodeAuthToken builds an AUTH frame payload carrying a single bearer
// token, for a client's SendWithSequence/Send call.
func EncodeAuthToken(token string) []byte {
	return tlv.EncodeStringArgs(map[string]string{TokenField: token})
}

// TokenAuth adapts an auth.Validator into a Callbacks.OnAuthRequest,
// decoding the AUTH frame's TLV payload and validating the token field
// against v.
func TokenAuth(v auth.Validator) func(c *Context, credentials []byte) (bool, string) {
	return func(c *Context, credentials []byte) (bool, string) {
		args, err := tlv.DecodeStringArgs(credentials)
		if err != nil {
			return false, "malformed credentials"
		}
		token, ok := args[TokenField]
		if !ok {
			return false, "missing token field"
		}
		if err := v.Validate(token); err != nil {
			return false, err.Error()
		}
		return true, ""
	}
}
