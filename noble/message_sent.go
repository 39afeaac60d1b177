package noble

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	EventMessageSent     = "circle.cctp.v1.MessageSent"
	messageAttributeName = "message"
)

// ExtractMessageSent returns the raw CCTP messages emitted by a burn transaction.
// No MessageSent event yields an empty result and no error. Events that are
// present but cannot be decoded are an error.
func ExtractMessageSent(events []types.Event) ([][]byte, error) {
	var messages [][]byte

	for _, event := range events {
		if event.Type != EventMessageSent {
			continue
		}

		var parsed bool
		var parseErrs error
		for _, attr := range event.Attributes {
			if attr.Key != messageAttributeName {
				continue
			}

			// typed events carry the bytes as a json string of base64
			encoded := strings.Trim(attr.Value, `"`)
			raw, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				parseErrs = errors.Join(parseErrs, fmt.Errorf("failed to decode message: %w", err))
				continue
			}

			if _, err := new(types.Message).Parse(raw); err != nil {
				parseErrs = errors.Join(parseErrs, fmt.Errorf("failed to parse message: %w", err))
				continue
			}

			parsed = true
			messages = append(messages, raw)
		}
		if !parsed {
			return nil, fmt.Errorf("unable to parse cctp message: %w", parseErrs)
		}
	}

	return messages, nil
}
