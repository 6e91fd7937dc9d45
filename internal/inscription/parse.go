package inscription

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"
)

// protocolId is the first push of every envelope.
var protocolId = []byte("ord")

// Inscription is a reconstructed envelope: a MIME type and the
// reassembled body.
type Inscription struct {
	ContentType []byte
	Body        []byte
}

// ContentTypeString returns the content type bytes as a string, empty
// when absent. Invalid UTF-8 is passed through unchanged; consumers only
// prefix-match it.
func (i *Inscription) ContentTypeString() string {
	return string(i.ContentType)
}

// ParseState classifies a parse attempt.
type ParseState int

const (
	// ParseNone: the scripts carry no (valid) envelope.
	ParseNone ParseState = iota
	// ParsePartial: a valid envelope prefix whose countdown has not
	// reached zero; later transactions must continue it.
	ParsePartial
	// ParseComplete: the envelope is fully assembled.
	ParseComplete
)

// Parsed is the result of a parse attempt over one or more
// transactions' first-input script-sigs.
type Parsed struct {
	State       ParseState
	Inscription *Inscription
}

// ParseTransactions attempts to assemble an envelope from the ordered
// transactions' first inputs. The first transaction contributes the
// protocol header; each subsequent one contributes only continuation
// chunks.
func ParseTransactions(txs []*wire.MsgTx) Parsed {
	sigScripts := make([][]byte, 0, len(txs))
	for _, tx := range txs {
		if len(tx.TxIn) == 0 {
			return Parsed{State: ParseNone}
		}
		sigScripts = append(sigScripts, tx.TxIn[0].SignatureScript)
	}
	return parseScripts(sigScripts)
}

func parseScripts(sigScripts [][]byte) Parsed {
	pushes, ok := decodePushes(sigScripts[0])
	if !ok {
		return Parsed{State: ParseNone}
	}

	if len(pushes) < 3 {
		return Parsed{State: ParseNone}
	}
	if !bytes.Equal(pushes[0], protocolId) {
		return Parsed{State: ParseNone}
	}

	npieces, ok := pushToNumber(pushes[1])
	if !ok || npieces == 0 {
		return Parsed{State: ParseNone}
	}

	contentType := append([]byte(nil), pushes[2]...)
	pushes = pushes[3:]

	var body []byte
	remaining := sigScripts[1:]

	for {
		for {
			if npieces == 0 {
				return Parsed{
					State: ParseComplete,
					Inscription: &Inscription{
						ContentType: contentType,
						Body:        body,
					},
				}
			}

			if len(pushes) < 2 {
				break
			}
			next, ok := pushToNumber(pushes[0])
			if !ok || next != npieces-1 {
				break
			}

			body = append(body, pushes[1]...)
			pushes = pushes[2:]
			npieces--
		}

		if len(remaining) == 0 {
			return Parsed{State: ParsePartial}
		}

		// Continuation transactions must lead with the expected
		// countdown push; anything else poisons the whole chain.
		pushes, ok = decodePushes(remaining[0])
		if !ok || len(pushes) < 2 {
			return Parsed{State: ParseNone}
		}
		next, ok := pushToNumber(pushes[0])
		if !ok || next != npieces-1 {
			return Parsed{State: ParseNone}
		}
		remaining = remaining[1:]
	}
}

// decodePushes splits a script into its pushed values: OP_0 pushes
// empty, OP_1..OP_16 push their small integer, OP_PUSHBYTES and
// OP_PUSHDATA push their payload. Any other opcode, or a truncated
// push, makes the script carry no envelope.
func decodePushes(script []byte) ([][]byte, bool) {
	var pushes [][]byte
	for len(script) > 0 {
		op := script[0]
		switch {
		case op == 0x00: // OP_0
			pushes = append(pushes, nil)
			script = script[1:]
		case op >= 0x51 && op <= 0x60: // OP_1..OP_16
			pushes = append(pushes, []byte{op - 0x50})
			script = script[1:]
		case op >= 0x01 && op <= 0x4b: // OP_PUSHBYTES_1..75
			n := int(op)
			if len(script) < 1+n {
				return nil, false
			}
			pushes = append(pushes, script[1:1+n])
			script = script[1+n:]
		case op == 0x4c: // OP_PUSHDATA1
			if len(script) < 2 {
				return nil, false
			}
			n := int(script[1])
			if len(script) < 2+n {
				return nil, false
			}
			pushes = append(pushes, script[2:2+n])
			script = script[2+n:]
		case op == 0x4d: // OP_PUSHDATA2
			if len(script) < 3 {
				return nil, false
			}
			n := int(script[1]) | int(script[2])<<8
			if len(script) < 3+n {
				return nil, false
			}
			pushes = append(pushes, script[3:3+n])
			script = script[3+n:]
		case op == 0x4e: // OP_PUSHDATA4
			if len(script) < 5 {
				return nil, false
			}
			n := int(script[1]) | int(script[2])<<8 | int(script[3])<<16 | int(script[4])<<24
			if n < 0 || len(script) < 5+n {
				return nil, false
			}
			pushes = append(pushes, script[5:5+n])
			script = script[5+n:]
		default:
			return nil, false
		}
	}
	return pushes, true
}

// pushToNumber reads a pushed value as a little-endian integer, the way
// countdown fields are encoded. Empty means zero; more than 8 bytes is
// rejected.
func pushToNumber(data []byte) (uint64, bool) {
	if len(data) == 0 {
		return 0, true
	}
	if len(data) > 8 {
		return 0, false
	}
	var n uint64
	for i, b := range data {
		n += uint64(b) << (8 * i)
	}
	return n, true
}
