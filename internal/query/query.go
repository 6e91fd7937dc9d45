// Package query is the read API over the index: point and range
// lookups served from store snapshots. Every method takes a fresh
// snapshot; no lock outlives a call.
package query

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/rawblock/dogeindexer/internal/chain"
	"github.com/rawblock/dogeindexer/internal/drc20"
	"github.com/rawblock/dogeindexer/internal/dunes"
	"github.com/rawblock/dogeindexer/internal/inscription"
	"github.com/rawblock/dogeindexer/internal/store"
)

// ErrNotFound distinguishes a missing row from a malformed request;
// the API layer maps them to 404 and 400.
var ErrNotFound = errors.New("query: not found")

// Service serves read-only queries.
type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service {
	return &Service{store: s}
}

// Status summarizes the index tip and counters.
type Status struct {
	Height     uint32            `json:"height"`
	BlockHash  string            `json:"blockHash"`
	Statistics map[string]uint64 `json:"statistics"`
}

func (s *Service) Status() (*Status, error) {
	var status Status
	err := s.store.View(func(tx *store.ReadTx) error {
		height, ok, err := tx.LatestHeight()
		if err != nil {
			return err
		}
		if ok {
			status.Height = height
			hash, _, err := tx.BlockHash(height)
			if err != nil {
				return err
			}
			if hash != nil {
				status.BlockHash = hash.String()
			}
		}
		status.Statistics, err = tx.Statistics()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// OutputInfo is everything known about one unspent output.
type OutputInfo struct {
	OutPoint  string        `json:"outpoint"`
	Value     string        `json:"value,omitempty"`
	SatRanges [][2]string   `json:"satRanges,omitempty"`
	Dunes     []DuneBalance `json:"dunes,omitempty"`
}

type DuneBalance struct {
	Dune   string `json:"dune"`
	Id     string `json:"id,omitempty"`
	Amount string `json:"amount"`
}

func (s *Service) Output(op wire.OutPoint) (*OutputInfo, error) {
	info := &OutputInfo{OutPoint: fmt.Sprintf("%s:%d", op.Hash, op.Index)}
	err := s.store.View(func(tx *store.ReadTx) error {
		ranges, haveRanges, err := tx.SatRanges(op)
		if err != nil {
			return err
		}
		for _, r := range ranges {
			info.SatRanges = append(info.SatRanges, [2]string{r.Start.String(), r.End().String()})
		}

		if value, ok, err := tx.OutputValue(op); err != nil {
			return err
		} else if ok {
			info.Value = btcutil.Amount(value).String()
		}

		balances, haveBalances, err := tx.DuneBalances(op)
		if err != nil {
			return err
		}
		for _, b := range balances {
			balance := DuneBalance{Amount: b.Amount.String()}
			if id, err := dunes.DuneIdFromUint128(b.Id); err == nil {
				balance.Id = id.String()
				if entry, ok, err := tx.DuneEntry(id); err == nil && ok {
					balance.Dune = entry.SpacedDune().String()
				}
			}
			info.Dunes = append(info.Dunes, balance)
		}

		if !haveRanges && !haveBalances && info.Value == "" {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// SatInfo derives a sat's attributes from its number.
type SatInfo struct {
	Number string `json:"number"`
	Height uint64 `json:"height"`
	Epoch  uint32 `json:"epoch"`
	Rarity string `json:"rarity"`
}

func (s *Service) Sat(sat chain.Sat) *SatInfo {
	return &SatInfo{
		Number: sat.String(),
		Height: uint64(sat.Height()),
		Epoch:  uint32(sat.Epoch()),
		Rarity: sat.Rarity().String(),
	}
}

// InscriptionInfo is an inscription's entry plus its current location.
type InscriptionInfo struct {
	Id          string `json:"id"`
	Number      uint64 `json:"number"`
	Height      uint64 `json:"height"`
	Fee         uint64 `json:"fee"`
	Sat         string `json:"sat,omitempty"`
	Timestamp   uint32 `json:"timestamp"`
	SatPoint    string `json:"satpoint,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	ContentLen  int    `json:"contentLength,omitempty"`
}

func (s *Service) Inscription(id inscription.Id) (*InscriptionInfo, []byte, error) {
	var info *InscriptionInfo
	var body []byte

	err := s.store.View(func(tx *store.ReadTx) error {
		raw, ok, err := tx.InscriptionEntry(id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		entry, err := inscription.DecodeEntry(raw)
		if err != nil {
			return err
		}

		info = &InscriptionInfo{
			Id:        id.String(),
			Number:    entry.Number,
			Height:    entry.Height,
			Fee:       entry.Fee,
			Timestamp: entry.Timestamp,
		}
		if entry.Sat != nil {
			info.Sat = entry.Sat.String()
		}

		if sp, ok, err := tx.InscriptionSatpoint(id); err != nil {
			return err
		} else if ok {
			info.SatPoint = sp.String()
		}

		content, err := s.assembleContent(tx, id)
		if err != nil {
			return err
		}
		if content != nil {
			info.ContentType = content.ContentTypeString()
			info.ContentLen = len(content.Body)
			body = content.Body
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return info, body, nil
}

// assembleContent re-parses the stored envelope chain.
func (s *Service) assembleContent(tx *store.ReadTx, id inscription.Id) (*inscription.Inscription, error) {
	txids, ok, err := tx.InscriptionTxids(id)
	if err != nil || !ok {
		return nil, err
	}
	txs := make([]*wire.MsgTx, 0, len(txids))
	for _, txid := range txids {
		raw, ok, err := tx.RawTx(txid)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("query: inscription chain references unstored tx %s", txid)
		}
		var msgTx wire.MsgTx
		if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, err
		}
		txs = append(txs, &msgTx)
	}
	parsed := inscription.ParseTransactions(txs)
	if parsed.State != inscription.ParseComplete {
		return nil, nil
	}
	return parsed.Inscription, nil
}

func (s *Service) InscriptionByNumber(number uint64) (*InscriptionInfo, []byte, error) {
	var id inscription.Id
	err := s.store.View(func(tx *store.ReadTx) error {
		found, ok, err := tx.InscriptionIdByNumber(number)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		id = found
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return s.Inscription(id)
}

// DuneInfo is a dune's full entry.
type DuneInfo struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	Number       uint64 `json:"number"`
	Block        uint64 `json:"block"`
	Etching      string `json:"etching"`
	Divisibility uint8  `json:"divisibility"`
	Symbol       string `json:"symbol,omitempty"`
	Supply       string `json:"supply"`
	Premine      string `json:"premine"`
	Burned       string `json:"burned"`
	Mints        uint64 `json:"mints"`
	Limit        string `json:"limit,omitempty"`
	Cap          string `json:"cap,omitempty"`
	Timestamp    uint32 `json:"timestamp"`
	Turbo        bool   `json:"turbo"`
}

func duneInfo(id dunes.DuneId, entry *dunes.DuneEntry) *DuneInfo {
	info := &DuneInfo{
		Id:           id.String(),
		Name:         entry.SpacedDune().String(),
		Number:       entry.Number,
		Block:        entry.Block,
		Etching:      entry.Etching.String(),
		Divisibility: entry.Divisibility,
		Supply:       entry.Supply.String(),
		Premine:      entry.Premine.String(),
		Burned:       entry.Burned.String(),
		Mints:        entry.Mints,
		Timestamp:    entry.Timestamp,
		Turbo:        entry.Turbo,
	}
	if entry.Symbol != nil {
		info.Symbol = string(*entry.Symbol)
	}
	if t := entry.Terms; t != nil {
		if t.Limit != nil {
			info.Limit = t.Limit.String()
		}
		if t.Cap != nil {
			info.Cap = t.Cap.String()
		}
	}
	return info
}

func (s *Service) DuneById(id dunes.DuneId) (*DuneInfo, error) {
	var info *DuneInfo
	err := s.store.View(func(tx *store.ReadTx) error {
		entry, ok, err := tx.DuneEntry(id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		info = duneInfo(id, entry)
		return nil
	})
	return info, err
}

func (s *Service) DuneByName(name string) (*DuneInfo, error) {
	spaced, err := dunes.ParseSpacedDune(name)
	if err != nil {
		return nil, err
	}
	var info *DuneInfo
	err = s.store.View(func(tx *store.ReadTx) error {
		id, ok, err := tx.DuneId(spaced.Dune)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		entry, ok, err := tx.DuneEntry(id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		info = duneInfo(id, entry)
		return nil
	})
	return info, err
}

func (s *Service) Dunes(page, limit int) ([]*DuneInfo, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if page < 0 {
		page = 0
	}
	var infos []*DuneInfo
	err := s.store.View(func(tx *store.ReadTx) error {
		ids, entries, err := tx.Dunes(page*limit, limit)
		if err != nil {
			return err
		}
		for i := range ids {
			infos = append(infos, duneInfo(ids[i], entries[i]))
		}
		return nil
	})
	return infos, err
}

// Drc20Token mirrors the stored token info for API responses.
func (s *Service) Drc20Token(tickStr string) (*drc20.TokenInfo, error) {
	tick, err := drc20.ParseTick(tickStr)
	if err != nil {
		return nil, err
	}
	var info *drc20.TokenInfo
	err = s.store.View(func(tx *store.ReadTx) error {
		found, ok, err := tx.Drc20TokenInfo(tick)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		info = found
		return nil
	})
	return info, err
}

func (s *Service) Drc20Tokens() ([]*drc20.TokenInfo, error) {
	var infos []*drc20.TokenInfo
	err := s.store.View(func(tx *store.ReadTx) error {
		var err error
		infos, err = tx.Drc20Tokens()
		return err
	})
	return infos, err
}

func (s *Service) Drc20Balances(address string) ([]*drc20.Balance, error) {
	var balances []*drc20.Balance
	err := s.store.View(func(tx *store.ReadTx) error {
		var err error
		balances, err = tx.Drc20BalancesByOwner(drc20.ScriptKey(address))
		return err
	})
	return balances, err
}

func (s *Service) Drc20Transferables(address string) ([]*drc20.TransferableLog, error) {
	var logs []*drc20.TransferableLog
	err := s.store.View(func(tx *store.ReadTx) error {
		var err error
		logs, err = tx.Drc20TransferablesByOwner(drc20.ScriptKey(address))
		return err
	})
	return logs, err
}

// InscriptionsOnOutput lists inscriptions currently on an output.
func (s *Service) InscriptionsOnOutput(op wire.OutPoint) ([]string, error) {
	var out []string
	err := s.store.View(func(tx *store.ReadTx) error {
		satpoints, ids, err := tx.InscriptionsOnOutput(op)
		if err != nil {
			return err
		}
		for i := range ids {
			out = append(out, fmt.Sprintf("%s@%s", ids[i], satpoints[i]))
		}
		return nil
	})
	return out, err
}
