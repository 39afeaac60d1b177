package types

// TxResult is the outcome of a broadcast and confirmed cosmos transaction.
// A non-zero Code is a failure and RawLog carries the reason.
type TxResult struct {
	Code      uint32
	Codespace string
	TxHash    string
	RawLog    string
	Height    int64
	Events    []Event
}

type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
