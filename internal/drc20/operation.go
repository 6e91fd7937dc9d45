package drc20

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/go-playground/validator/v10"

	"github.com/rawblock/dogeindexer/internal/inscription"
	"github.com/rawblock/dogeindexer/internal/ordinals"
)

// ProtocolLiteral is the required "p" field value.
const ProtocolLiteral = "drc-20"

// minBodyLen is the shortest body that can possibly be a valid
// operation; shorter bodies are rejected before JSON parsing.
const minBodyLen = 40

// validate checks struct tags on decoded operations. A package-level
// singleton; validator instances cache struct metadata and are safe for
// concurrent use.
var validate = validator.New()

// Deploy declares a new token.
type Deploy struct {
	Tick string `json:"tick" validate:"required,len=4"`
	Max  string `json:"max" validate:"required"`
	Lim  string `json:"lim,omitempty"`
	Dec  string `json:"dec,omitempty"`
}

// Mint claims an amount of a deployed token.
type Mint struct {
	Tick string `json:"tick" validate:"required,len=4"`
	Amt  string `json:"amt" validate:"required"`
}

// Transfer either reserves an amount for transfer (when inscribed) or
// executes the reservation (when the inscription moves).
type Transfer struct {
	Tick string `json:"tick" validate:"required,len=4"`
	Amt  string `json:"amt" validate:"required"`
}

// OperationKind discriminates resolved operations.
type OperationKind int

const (
	OpDeploy OperationKind = iota
	OpMint
	OpInscribeTransfer
	OpTransfer
)

func (k OperationKind) String() string {
	switch k {
	case OpDeploy:
		return "deploy"
	case OpMint:
		return "mint"
	case OpInscribeTransfer:
		return "inscribe-transfer"
	case OpTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Operation is one resolved ledger operation.
type Operation struct {
	Kind     OperationKind
	Deploy   *Deploy
	Mint     *Mint
	Transfer *Transfer
}

// ActionKind classifies what happened to an inscription in a
// transaction.
type ActionKind int

const (
	// ActionNew: the inscription was created in this transaction.
	ActionNew ActionKind = iota
	// ActionTransfer: an existing inscription moved.
	ActionTransfer
)

// InscriptionOp is the inscription tracker's per-transaction report
// consumed by the executor.
type InscriptionOp struct {
	Txid        chainhash.Hash
	Action      ActionKind
	Inscription *inscription.Inscription // set for ActionNew
	Id          inscription.Id
	OldSatPoint ordinals.SatPoint
	NewSatPoint *ordinals.SatPoint // nil when the inscription left the output set
}

// rawOperation is the JSON wire shape before op dispatch.
type rawOperation struct {
	P  string `json:"p"`
	Op string `json:"op"`
}

// ParseOperation decodes an inscription body into an operation,
// interpreting a "transfer" op per the carrying action: a freshly
// inscribed transfer is a reservation, a moved one is an execution.
// Returns nil with no error when the body simply isn't a DRC-20
// operation.
func ParseOperation(ins *inscription.Inscription, action ActionKind) (*Operation, error) {
	if ins == nil || len(ins.Body) < minBodyLen {
		return nil, nil
	}

	contentType := ins.ContentTypeString()
	if !strings.HasPrefix(contentType, "text/plain") && !strings.HasPrefix(contentType, "application/json") {
		return nil, nil
	}

	var raw rawOperation
	if err := json.Unmarshal(ins.Body, &raw); err != nil {
		return nil, nil
	}
	if raw.P != ProtocolLiteral {
		return nil, nil
	}

	switch raw.Op {
	case "deploy":
		if action != ActionNew {
			return nil, nil
		}
		var d Deploy
		if err := json.Unmarshal(ins.Body, &d); err != nil {
			return nil, nil
		}
		if err := validate.Struct(&d); err != nil {
			return nil, fmt.Errorf("drc20: invalid deploy: %w", err)
		}
		return &Operation{Kind: OpDeploy, Deploy: &d}, nil
	case "mint":
		if action != ActionNew {
			return nil, nil
		}
		var m Mint
		if err := json.Unmarshal(ins.Body, &m); err != nil {
			return nil, nil
		}
		if err := validate.Struct(&m); err != nil {
			return nil, fmt.Errorf("drc20: invalid mint: %w", err)
		}
		return &Operation{Kind: OpMint, Mint: &m}, nil
	case "transfer":
		var t Transfer
		if err := json.Unmarshal(ins.Body, &t); err != nil {
			return nil, nil
		}
		if err := validate.Struct(&t); err != nil {
			return nil, fmt.Errorf("drc20: invalid transfer: %w", err)
		}
		kind := OpInscribeTransfer
		if action == ActionTransfer {
			kind = OpTransfer
		}
		return &Operation{Kind: kind, Transfer: &t}, nil
	default:
		return nil, nil
	}
}
