// Package ledger implements the token ledger of a single non-fungible
// collection with bounded supply and paid minting.
//
// A Ledger is not safe for concurrent use. The engine owns it and applies
// calls one at a time. Every mutating method validates all of its inputs
// before it changes anything, so a returned error means state is untouched.
package ledger

import (
	"math"
	"strconv"

	"github.com/roach88/shiden34/internal/ir"
)

// TokenID identifies a token. Ids are assigned sequentially from 1.
type TokenID uint64

// ZeroAccount is the reserved "no account" value. It is the sender of mint
// events and can never hold tokens or approvals.
const ZeroAccount ir.Account = "0x0000000000000000000000000000000000000000000000000000000000000000"

// IsNullAccount reports whether a is empty or the zero account.
func IsNullAccount(a ir.Account) bool {
	return a == "" || a == ZeroAccount
}

// Params are the creation parameters of a collection.
type Params struct {
	Name      string
	Symbol    string
	BaseURI   string
	MaxSupply int64
	Price     int64
}

// Token is a minted token. Approved is empty when no operator is approved.
type Token struct {
	ID       TokenID
	Owner    ir.Account
	Approved ir.Account
}

// Ledger is the state of one collection.
type Ledger struct {
	name          string
	symbol        string
	baseURI       string
	maxSupply     int64
	price         int64
	maxMintAmount int64 // 0 = no cap
	owner         ir.Account
	collectionID  string
	collected     int64

	tokens   []Token // tokens[i].ID == i+1
	balances map[ir.Account]int64
}

// New creates an empty collection owned by creator.
func New(creator ir.Account, p Params) (*Ledger, error) {
	switch {
	case IsNullAccount(creator):
		return nil, newError(InvalidParams, "creator must be a real account")
	case p.Name == "":
		return nil, newError(InvalidParams, "name must not be empty")
	case p.MaxSupply <= 0:
		return nil, newError(InvalidParams, "max supply must be positive, got %d", p.MaxSupply)
	case p.Price < 0:
		return nil, newError(InvalidParams, "price must not be negative, got %d", p.Price)
	}

	id, err := ir.CollectionID(p.Name, p.Symbol, p.BaseURI, p.MaxSupply, creator)
	if err != nil {
		return nil, err
	}

	return &Ledger{
		name:         p.Name,
		symbol:       p.Symbol,
		baseURI:      p.BaseURI,
		maxSupply:    p.MaxSupply,
		price:        p.Price,
		owner:        creator,
		collectionID: id,
		tokens:       []Token{},
		balances:     make(map[ir.Account]int64),
	}, nil
}

// MintNext mints the next token to caller for exactly one price.
func (l *Ledger) MintNext(caller ir.Account, payment int64) (TokenID, []ir.Event, error) {
	if IsNullAccount(caller) {
		return 0, nil, newError(InvalidParams, "caller must be a real account")
	}
	if payment != l.price {
		return 0, nil, newError(BadMintValue, "payment %d does not match price %d", payment, l.price)
	}
	if l.TotalSupply() >= l.maxSupply {
		return 0, nil, newError(CollectionIsFull, "all %d tokens are minted", l.maxSupply)
	}
	collected, ok := addPayment(l.collected, payment)
	if !ok {
		return 0, nil, newError(InvalidParams, "payment %d overflows collected %d", payment, l.collected)
	}

	id := l.mintTo(caller)
	l.collected = collected
	return id, []ir.Event{TransferEvent(ZeroAccount, caller, id)}, nil
}

// Mint mints amount sequential tokens to to. The payment must equal
// price times amount. One Transfer event is emitted per token, in id order.
func (l *Ledger) Mint(caller, to ir.Account, amount, payment int64) ([]ir.Event, error) {
	if IsNullAccount(caller) {
		return nil, newError(InvalidParams, "caller must be a real account")
	}
	if amount <= 0 {
		return nil, newError(InvalidParams, "amount must be positive, got %d", amount)
	}
	if IsNullAccount(to) {
		return nil, newError(InvalidParams, "recipient must be a real account")
	}
	if due, ok := mulPrice(l.price, amount); !ok || payment != due {
		return nil, newError(BadMintValue, "payment %d does not match %d x %d", payment, l.price, amount)
	}
	if amount > l.maxSupply-l.TotalSupply() {
		return nil, newError(CollectionIsFull, "%d requested, %d left", amount, l.maxSupply-l.TotalSupply())
	}
	if l.maxMintAmount > 0 && amount > l.maxMintAmount {
		return nil, newError(MintAmountExceeded, "%d requested, cap is %d", amount, l.maxMintAmount)
	}
	collected, ok := addPayment(l.collected, payment)
	if !ok {
		return nil, newError(InvalidParams, "payment %d overflows collected %d", payment, l.collected)
	}

	events := make([]ir.Event, 0, amount)
	for range amount {
		id := l.mintTo(to)
		events = append(events, TransferEvent(ZeroAccount, to, id))
	}
	l.collected = collected
	return events, nil
}

// mulPrice returns price*amount, or false on overflow.
func mulPrice(price, amount int64) (int64, bool) {
	if price != 0 && amount > math.MaxInt64/price {
		return 0, false
	}
	return price * amount, true
}

// addPayment returns collected+payment, or false on overflow. Payments are
// never negative.
func addPayment(collected, payment int64) (int64, bool) {
	if payment > math.MaxInt64-collected {
		return 0, false
	}
	return collected + payment, true
}

func (l *Ledger) mintTo(to ir.Account) TokenID {
	id := TokenID(len(l.tokens) + 1)
	l.tokens = append(l.tokens, Token{ID: id, Owner: to})
	l.balances[to]++
	return id
}

// SetMaxMintAmount sets the per-call cap on Mint.
func (l *Ledger) SetMaxMintAmount(caller ir.Account, amount int64) error {
	if caller != l.owner {
		return newError(NotOwner, "only the collection owner may set the mint cap")
	}
	if amount <= 0 {
		return newError(InvalidParams, "mint cap must be positive, got %d", amount)
	}
	l.maxMintAmount = amount
	return nil
}

// SetPrice changes the price of one token.
func (l *Ledger) SetPrice(caller ir.Account, price int64) error {
	if caller != l.owner {
		return newError(NotOwner, "only the collection owner may set the price")
	}
	if price < 0 {
		return newError(InvalidParams, "price must not be negative, got %d", price)
	}
	l.price = price
	return nil
}

// Withdraw hands the accumulated mint payments to the owner.
func (l *Ledger) Withdraw(caller ir.Account) (int64, error) {
	if caller != l.owner {
		return 0, newError(NotOwner, "only the collection owner may withdraw")
	}
	amount := l.collected
	l.collected = 0
	return amount, nil
}

// Transfer moves token id from its owner to to. The caller must be the owner
// or the approved operator of the token. The approval is cleared. data is
// opaque to the ledger.
func (l *Ledger) Transfer(caller, to ir.Account, id TokenID, data []byte) ([]ir.Event, error) {
	tok, err := l.token(id)
	if err != nil {
		return nil, err
	}
	if IsNullAccount(to) {
		return nil, newError(InvalidParams, "recipient must be a real account")
	}
	if caller != tok.Owner && (tok.Approved == "" || caller != tok.Approved) {
		return nil, newError(NotOwnerOrApproved, "%s may not move token %d", caller, id)
	}

	from := tok.Owner
	tok.Owner = to
	tok.Approved = ""
	l.balances[from]--
	if l.balances[from] == 0 {
		delete(l.balances, from)
	}
	l.balances[to]++
	return []ir.Event{TransferEvent(from, to, id)}, nil
}

// Approve grants or revokes operator's right to transfer token id.
// Revoking only clears the approval when operator is the approved one.
func (l *Ledger) Approve(caller, operator ir.Account, id TokenID, approved bool) ([]ir.Event, error) {
	tok, err := l.token(id)
	if err != nil {
		return nil, err
	}
	if caller != tok.Owner {
		return nil, newError(NotOwner, "%s does not own token %d", caller, id)
	}
	if operator == caller || IsNullAccount(operator) {
		return nil, newError(InvalidParams, "operator must be a real account other than the owner")
	}

	switch {
	case approved:
		tok.Approved = operator
	case tok.Approved == operator:
		tok.Approved = ""
	}
	return []ir.Event{ApprovalEvent(caller, operator, id, approved)}, nil
}

func (l *Ledger) token(id TokenID) (*Token, error) {
	if id == 0 || id > TokenID(len(l.tokens)) {
		return nil, newError(TokenNotFound, "token %d", id)
	}
	return &l.tokens[id-1], nil
}

// TotalSupply is the number of minted tokens.
func (l *Ledger) TotalSupply() int64 { return int64(len(l.tokens)) }

func (l *Ledger) Owner() ir.Account { return l.owner }

func (l *Ledger) MaxSupply() int64 { return l.maxSupply }

func (l *Ledger) Price() int64 { return l.price }

// MaxMintAmount is the per-call mint cap, 0 when unset.
func (l *Ledger) MaxMintAmount() int64 { return l.maxMintAmount }

func (l *Ledger) CollectionID() string { return l.collectionID }

// Collected is the sum of accepted payments not yet withdrawn.
func (l *Ledger) Collected() int64 { return l.collected }

func (l *Ledger) Name() string { return l.name }

func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) BaseURI() string { return l.baseURI }

// BalanceOf is the number of tokens account owns.
func (l *Ledger) BalanceOf(account ir.Account) int64 {
	return l.balances[account]
}

// OwnerOf returns the owner of token id.
func (l *Ledger) OwnerOf(id TokenID) (ir.Account, error) {
	tok, err := l.token(id)
	if err != nil {
		return "", err
	}
	return tok.Owner, nil
}

// TokenURI returns baseUri + id + ".json".
func (l *Ledger) TokenURI(id TokenID) (string, error) {
	if _, err := l.token(id); err != nil {
		return "", err
	}
	return l.baseURI + strconv.FormatUint(uint64(id), 10) + ".json", nil
}

// Allowance reports whether operator may transfer owner's token id.
// Unminted ids are never allowed.
func (l *Ledger) Allowance(owner, operator ir.Account, id TokenID) bool {
	tok, err := l.token(id)
	if err != nil {
		return false
	}
	return tok.Owner == owner && tok.Approved != "" && tok.Approved == operator
}

// Attribute returns a collection attribute. Unknown collections and keys
// yield an empty string.
func (l *Ledger) Attribute(collectionID, key string) string {
	if collectionID != l.collectionID {
		return ""
	}
	switch key {
	case "baseUri":
		return l.baseURI
	case "name":
		return l.name
	case "symbol":
		return l.symbol
	default:
		return ""
	}
}
