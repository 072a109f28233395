package near

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// createAccountArgs is the decoded argument payload of a create_account
// function call.
type createAccountArgs struct {
	NewAccountID string `json:"new_account_id"`
	NewPublicKey string `json:"new_public_key"`
}

// decodeCreateAccountArgs decodes the base64-encoded JSON argument blob of
// a create_account call. Malformed payloads return an error and must not
// abort the surrounding batch; the caller degrades to a plain transaction.
func decodeCreateAccountArgs(raw string) (createAccountArgs, error) {
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return createAccountArgs{}, fmt.Errorf("decode create_account args: %w", err)
	}

	var args createAccountArgs
	if err := json.Unmarshal(decoded, &args); err != nil {
		return createAccountArgs{}, fmt.Errorf("parse create_account args: %w", err)
	}
	if args.NewAccountID == "" {
		return createAccountArgs{}, fmt.Errorf("parse create_account args: missing new_account_id")
	}
	return args, nil
}
