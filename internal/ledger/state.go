package ledger

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/shiden34/internal/ir"
)

// State is a plain copy of a ledger, used for persistence.
// Tokens are ordered by id starting at 1. Balances are derived and not stored.
type State struct {
	Name          string
	Symbol        string
	BaseURI       string
	MaxSupply     int64
	Price         int64
	MaxMintAmount int64
	Owner         ir.Account
	CollectionID  string
	Collected     int64
	Tokens        []Token
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() State {
	return State{
		Name:          l.name,
		Symbol:        l.symbol,
		BaseURI:       l.baseURI,
		MaxSupply:     l.maxSupply,
		Price:         l.price,
		MaxMintAmount: l.maxMintAmount,
		Owner:         l.owner,
		CollectionID:  l.collectionID,
		Collected:     l.collected,
		Tokens:        slices.Clone(l.tokens),
	}
}

// Token returns a copy of token id.
func (l *Ledger) Token(id TokenID) (Token, error) {
	tok, err := l.token(id)
	if err != nil {
		return Token{}, err
	}
	return *tok, nil
}

// Clone returns an independent copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.tokens = slices.Clone(l.tokens)
	c.balances = maps.Clone(l.balances)
	return &c
}

// Restore rebuilds a ledger from a snapshot, checking that it is consistent.
func Restore(s State) (*Ledger, error) {
	l, err := New(s.Owner, Params{
		Name:      s.Name,
		Symbol:    s.Symbol,
		BaseURI:   s.BaseURI,
		MaxSupply: s.MaxSupply,
		Price:     s.Price,
	})
	if err != nil {
		return nil, fmt.Errorf("restore collection: %w", err)
	}
	if s.CollectionID != "" && s.CollectionID != l.collectionID {
		return nil, fmt.Errorf("restore collection: id mismatch: stored %s, derived %s", s.CollectionID, l.collectionID)
	}
	if s.MaxMintAmount < 0 || s.Collected < 0 {
		return nil, fmt.Errorf("restore collection: negative mint cap or balance")
	}
	if int64(len(s.Tokens)) > s.MaxSupply {
		return nil, fmt.Errorf("restore collection: %d tokens exceed max supply %d", len(s.Tokens), s.MaxSupply)
	}

	l.maxMintAmount = s.MaxMintAmount
	l.collected = s.Collected
	for i, tok := range s.Tokens {
		if tok.ID != TokenID(i+1) {
			return nil, fmt.Errorf("restore token: expected id %d, got %d", i+1, tok.ID)
		}
		if IsNullAccount(tok.Owner) {
			return nil, fmt.Errorf("restore token %d: no owner", tok.ID)
		}
		l.tokens = append(l.tokens, tok)
		l.balances[tok.Owner]++
	}
	return l, nil
}
