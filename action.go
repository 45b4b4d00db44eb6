package lnurlpay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Success action tags defined by LUD-09.
const (
	ActionTagURL     = "url"
	ActionTagMessage = "message"
	ActionTagAES     = "aes"
)

// SuccessAction is an instruction from the LN SERVICE to execute once the
// invoice has been paid.
type SuccessAction interface {
	// Tag returns the action tag as received.
	Tag() string
}

// URLAction asks the wallet to show a url with a description.
type URLAction struct {
	Description string `json:"description"`
	URL         string `json:"url"`
}

func (a *URLAction) Tag() string { return ActionTagURL }

// MessageAction asks the wallet to show a message.
type MessageAction struct {
	Message string `json:"message"`
}

func (a *MessageAction) Tag() string { return ActionTagMessage }

// AESAction carries a ciphertext to be decrypted with the payment preimage.
// It is recognized but not supported.
type AESAction struct {
	Description string `json:"description"`
	Ciphertext  string `json:"ciphertext"`
	IV          string `json:"iv"`
}

func (a *AESAction) Tag() string { return ActionTagAES }

// UnknownAction is a success action with a tag this package does not know.
type UnknownAction struct {
	ActionTag string
	Raw       json.RawMessage
}

func (a *UnknownAction) Tag() string { return a.ActionTag }

// ParseSuccessAction decodes the successAction field of a callback response.
// An absent or null field yields a nil action.
func ParseSuccessAction(raw json.RawMessage) (SuccessAction, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var header struct {
		Tag string `json:"tag"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("invalid successAction: %w", err)
	}

	var action SuccessAction
	switch header.Tag {
	case ActionTagURL:
		action = &URLAction{}

	case ActionTagMessage:
		action = &MessageAction{}

	case ActionTagAES:
		action = &AESAction{}

	default:
		return &UnknownAction{ActionTag: header.Tag, Raw: raw}, nil
	}

	if err := json.Unmarshal(raw, action); err != nil {
		return nil, fmt.Errorf("invalid %s successAction: %w",
			header.Tag, err)
	}

	return action, nil
}

// supportedAction reports whether the wallet can execute the action.
func supportedAction(action SuccessAction) bool {
	switch action.(type) {
	case *URLAction, *MessageAction:
		return true
	default:
		return false
	}
}
