package types

import (
	"time"
)

// Domain is a CCTP domain id.
type Domain uint32

const (
	DomainEthereum Domain = 0
	DomainNoble    Domain = 4
	DomainBase     Domain = 6
)

// Step is the stage a BridgeTransfer is currently in.
type Step string

const (
	StepIdle               Step = "idle"
	StepTransferringSource Step = "transferring_source"
	StepBurning            Step = "burning"
	StepAttesting          Step = "attesting"
	StepMinting            Step = "minting"
	StepComplete           Step = "complete"
)

// Order returns the position of the step in the forward flow. Idle is 0.
func (s Step) Order() int {
	switch s {
	case StepTransferringSource:
		return 1
	case StepBurning:
		return 2
	case StepAttesting:
		return 3
	case StepMinting:
		return 4
	case StepComplete:
		return 5
	default:
		return 0
	}
}

// Stage names used as keys for recorded tx hashes.
const (
	StageSourceTransfer = "source-transfer"
	StageBurn           = "burn"
	StageMint           = "mint"
	StageReverse        = "reverse-transfer"
)

// StageTx is a transaction hash recorded for a completed stage.
type StageTx struct {
	Stage  string `json:"stage"`
	TxHash string `json:"tx_hash"`
}

// BridgeTransfer is one end-to-end bridge attempt.
type BridgeTransfer struct {
	ID              string    `json:"id"`
	Step            Step      `json:"step"`
	RequestedAmount string    `json:"requested_amount,omitempty"`
	TxHashes        []StageTx `json:"tx_hashes"`
	Error           string    `json:"error,omitempty"`
	Created         time.Time `json:"created"`
	Updated         time.Time `json:"updated"`
}

// Hash returns the most recently recorded tx hash for a stage, or "".
func (t *BridgeTransfer) Hash(stage string) string {
	for i := len(t.TxHashes) - 1; i >= 0; i-- {
		if t.TxHashes[i].Stage == stage {
			return t.TxHashes[i].TxHash
		}
	}
	return ""
}

// Clone returns a deep copy safe to hand to other goroutines.
func (t *BridgeTransfer) Clone() BridgeTransfer {
	c := *t
	c.TxHashes = append([]StageTx(nil), t.TxHashes...)
	return c
}

// BurnMessage is a burn that is waiting for an attestation and a mint.
type BurnMessage struct {
	SourceTxHash      string    `json:"source_tx_hash"`
	SourceDomain      Domain    `json:"source_domain"`
	DestinationDomain Domain    `json:"destination_domain"`
	RecipientAddress  []byte    `json:"recipient_address"` // 32 byte padded
	MessageBytes      []byte    `json:"message_bytes,omitempty"`
	Nonce             uint64    `json:"nonce"`
	Amount            string    `json:"amount"`
	Created           time.Time `json:"created"`
}

// AttestationStatus is the state reported by the attestation service.
type AttestationStatus string

const (
	AttestationPending  AttestationStatus = "pending_confirmations"
	AttestationComplete AttestationStatus = "complete"
	AttestationNotFound AttestationStatus = "not_found"
)

// Attestation is the attestation service's confirmation of a burn message.
// Signature is only set when Status is complete.
type Attestation struct {
	Status    AttestationStatus
	Signature []byte
	Message   []byte // message bytes echoed by the service, may be empty
	Nonce     uint64
}
