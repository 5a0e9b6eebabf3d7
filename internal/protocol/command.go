package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ismaiel54/margin-exchange/internal/msg"
)

// Kind tags a command envelope
type Kind string

// Command kinds
const (
	KindCreateOrder     Kind = "create-order"
	KindCloseTrade      Kind = "close-trade"
	KindGetOpenTrades   Kind = "get-open-trades"
	KindGetClosedTrades Kind = "get-closed-trades"
	KindGetBalance      Kind = "get-balance"
	KindGetAssets       Kind = "get-assets"
	KindTick            Kind = "tick"
)

// Kinds lists every command kind the engine understands
func Kinds() []Kind {
	return []Kind{
		KindCreateOrder,
		KindCloseTrade,
		KindGetOpenTrades,
		KindGetClosedTrades,
		KindGetBalance,
		KindGetAssets,
		KindTick,
	}
}

var (
	// ErrMissingKind is returned for envelopes without a kind
	ErrMissingKind = errors.New("missing kind")
	// ErrUnknownKind is returned for kinds outside Kinds()
	ErrUnknownKind = errors.New("unknown kind")
	// ErrMissingMessage is returned for command records without a message field
	ErrMissingMessage = errors.New("missing message field")
)

// Command is the closed set of command payloads. Only types in this package implement it.
type Command interface {
	Kind() Kind
	CommandID() string
	SetCommandID(id string)
	isCommand()
}

// Header holds the fields common to every command envelope
type Header struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
}

type base struct {
	ID string `json:"id"`
}

func (b *base) CommandID() string       { return b.ID }
func (b *base) SetCommandID(id string) { b.ID = id }
func (b *base) isCommand()             {}

// CreateOrder opens a spot position (qty) or a leveraged one (leverage + margin)
type CreateOrder struct {
	base
	Symbol   string   `json:"symbol"`
	Type     string   `json:"type"`
	Qty      *float64 `json:"qty,omitempty"`
	Leverage *int     `json:"leverage,omitempty"`
	Margin   *float64 `json:"margin,omitempty"`
}

// CloseTrade closes an open order at the current mark price
type CloseTrade struct {
	base
	OrderID string `json:"orderId"`
}

// Tick carries a new quote for one symbol
type Tick struct {
	base
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   int64   `json:"time,omitempty"`
}

// GetOpenTrades lists open orders
type GetOpenTrades struct{ base }

// GetClosedTrades lists closed orders with realised PnL
type GetClosedTrades struct{ base }

// GetBalance returns the usd balance
type GetBalance struct{ base }

// GetAssets returns every balance entry
type GetAssets struct{ base }

func (*CreateOrder) Kind() Kind     { return KindCreateOrder }
func (*CloseTrade) Kind() Kind      { return KindCloseTrade }
func (*Tick) Kind() Kind            { return KindTick }
func (*GetOpenTrades) Kind() Kind   { return KindGetOpenTrades }
func (*GetClosedTrades) Kind() Kind { return KindGetClosedTrades }
func (*GetBalance) Kind() Kind      { return KindGetBalance }
func (*GetAssets) Kind() Kind       { return KindGetAssets }

func newCommand(kind Kind) (Command, error) {
	switch kind {
	case KindCreateOrder:
		return &CreateOrder{}, nil
	case KindCloseTrade:
		return &CloseTrade{}, nil
	case KindTick:
		return &Tick{}, nil
	case KindGetOpenTrades:
		return &GetOpenTrades{}, nil
	case KindGetClosedTrades:
		return &GetClosedTrades{}, nil
	case KindGetBalance:
		return &GetBalance{}, nil
	case KindGetAssets:
		return &GetAssets{}, nil
	case "":
		return nil, ErrMissingKind
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// EncodeCommand encodes a command into its JSON envelope
func EncodeCommand(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to build envelope: %w", err)
	}
	kind, _ := json.Marshal(cmd.Kind())
	envelope["kind"] = kind

	return json.Marshal(envelope)
}

// DecodeHeader reads the id and kind of an envelope
func DecodeHeader(data []byte) (Header, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return Header{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if h.Kind == "" {
		return h, ErrMissingKind
	}
	return h, nil
}

// DecodeCommand decodes the full envelope for an already decoded header
func DecodeCommand(h Header, data []byte) (Command, error) {
	cmd, err := newCommand(h.Kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", h.Kind, err)
	}
	return cmd, nil
}

// CommandFields builds the record fields for the command stream
func CommandFields(cmd Command) (map[string]string, error) {
	data, err := EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	return map[string]string{msg.FieldMessage: string(data)}, nil
}

// CommandPayload returns the raw envelope of a command record
func CommandPayload(rec msg.Record) ([]byte, error) {
	raw, ok := rec.Fields[msg.FieldMessage]
	if !ok {
		return nil, ErrMissingMessage
	}
	return []byte(raw), nil
}
