package engine

import (
	"github.com/roach88/shiden34/internal/ir"
	"github.com/roach88/shiden34/internal/ledger"
)

// Method names. Argument keys follow the contract ABI (camelCase).
const (
	MethodNew              = "new"
	MethodMintNext         = "mintNext"
	MethodMint             = "mint"
	MethodSetMaxMintAmount = "setMaxMintAmount"
	MethodSetPrice         = "setPrice"
	MethodWithdraw         = "withdraw"
	MethodTransfer         = "transfer"
	MethodApprove          = "approve"

	MethodTotalSupply   = "totalSupply"
	MethodOwner         = "owner"
	MethodMaxSupply     = "maxSupply"
	MethodPrice         = "price"
	MethodMaxMintAmount = "maxMintAmount"
	MethodCollectionID  = "collectionId"
	MethodCollected     = "collected"
	MethodBalanceOf     = "balanceOf"
	MethodOwnerOf       = "ownerOf"
	MethodTokenURI      = "tokenUri"
	MethodAllowance     = "allowance"
	MethodGetAttribute  = "getAttribute"
)

// execution is the context of one method invocation. For mutating methods
// ledger is a private clone; the constructor replaces it.
type execution struct {
	ledger *ledger.Ledger
	call   ir.Call
	gas    *GasMeter
}

type handler func(x *execution) (ir.IRObject, []ir.Event, error)

type method struct {
	mutating    bool
	constructor bool
	run         handler
}

var methods = map[string]method{
	MethodNew:              {mutating: true, constructor: true, run: runNew},
	MethodMintNext:         {mutating: true, run: runMintNext},
	MethodMint:             {mutating: true, run: runMint},
	MethodSetMaxMintAmount: {mutating: true, run: runSetMaxMintAmount},
	MethodSetPrice:         {mutating: true, run: runSetPrice},
	MethodWithdraw:         {mutating: true, run: runWithdraw},
	MethodTransfer:         {mutating: true, run: runTransfer},
	MethodApprove:          {mutating: true, run: runApprove},

	MethodTotalSupply:   {run: readInt(func(l *ledger.Ledger) int64 { return l.TotalSupply() })},
	MethodMaxSupply:     {run: readInt(func(l *ledger.Ledger) int64 { return l.MaxSupply() })},
	MethodPrice:         {run: readInt(func(l *ledger.Ledger) int64 { return l.Price() })},
	MethodMaxMintAmount: {run: readInt(func(l *ledger.Ledger) int64 { return l.MaxMintAmount() })},
	MethodCollected:     {run: readInt(func(l *ledger.Ledger) int64 { return l.Collected() })},
	MethodOwner:         {run: readString(func(l *ledger.Ledger) string { return string(l.Owner()) })},
	MethodCollectionID:  {run: readString(func(l *ledger.Ledger) string { return l.CollectionID() })},
	MethodBalanceOf:     {run: runBalanceOf},
	MethodOwnerOf:       {run: runOwnerOf},
	MethodTokenURI:      {run: runTokenURI},
	MethodAllowance:     {run: runAllowance},
	MethodGetAttribute:  {run: runGetAttribute},
}

// Methods returns every method name and whether it mutates state.
func Methods() map[string]bool {
	out := make(map[string]bool, len(methods))
	for name, m := range methods {
		out[name] = m.mutating
	}
	return out
}

// IsMutating reports whether name is a known state-changing method.
func IsMutating(name string) bool {
	return methods[name].mutating
}

func noEvents() []ir.Event { return []ir.Event{} }

func value(v ir.IRValue) ir.IRObject {
	return ir.IRObject{"value": v}
}

func runNew(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	name, err := x.stringArg("name")
	if err != nil {
		return nil, nil, err
	}
	symbol, err := x.stringArg("symbol")
	if err != nil {
		return nil, nil, err
	}
	baseURI, err := x.stringArg("baseUri")
	if err != nil {
		return nil, nil, err
	}
	maxSupply, err := x.intArg("maxSupply")
	if err != nil {
		return nil, nil, err
	}
	price, err := x.intArg("price")
	if err != nil {
		return nil, nil, err
	}
	maxMint, hasCap, err := x.optionalIntArg("maxMintAmount")
	if err != nil {
		return nil, nil, err
	}

	l, err := ledger.New(x.call.Caller, ledger.Params{
		Name:      name,
		Symbol:    symbol,
		BaseURI:   baseURI,
		MaxSupply: maxSupply,
		Price:     price,
	})
	if err != nil {
		return nil, nil, err
	}
	if hasCap {
		if err := l.SetMaxMintAmount(x.call.Caller, maxMint); err != nil {
			return nil, nil, err
		}
	}

	x.ledger = l
	return ir.IRObject{"collectionId": ir.IRString(l.CollectionID())}, noEvents(), nil
}

func runMintNext(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	if err := x.gas.ChargeTokens(1); err != nil {
		return nil, nil, err
	}
	id, events, err := x.ledger.MintNext(x.call.Caller, x.call.Value)
	if err != nil {
		return nil, nil, err
	}
	return ir.IRObject{"id": ir.IRInt(int64(id))}, events, nil
}

func runMint(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	to, err := x.accountArg("to")
	if err != nil {
		return nil, nil, err
	}
	amount, err := x.intArg("amount")
	if err != nil {
		return nil, nil, err
	}
	if err := x.gas.ChargeTokens(amount); err != nil {
		return nil, nil, err
	}
	events, err := x.ledger.Mint(x.call.Caller, to, amount, x.call.Value)
	if err != nil {
		return nil, nil, err
	}
	return ir.IRObject{}, events, nil
}

func runSetMaxMintAmount(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	amount, err := x.intArg("amount")
	if err != nil {
		return nil, nil, err
	}
	if err := x.ledger.SetMaxMintAmount(x.call.Caller, amount); err != nil {
		return nil, nil, err
	}
	return ir.IRObject{}, noEvents(), nil
}

func runSetPrice(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	price, err := x.intArg("price")
	if err != nil {
		return nil, nil, err
	}
	if err := x.ledger.SetPrice(x.call.Caller, price); err != nil {
		return nil, nil, err
	}
	return ir.IRObject{}, noEvents(), nil
}

func runWithdraw(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	amount, err := x.ledger.Withdraw(x.call.Caller)
	if err != nil {
		return nil, nil, err
	}
	return ir.IRObject{"amount": ir.IRInt(amount)}, noEvents(), nil
}

func runTransfer(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	to, err := x.accountArg("to")
	if err != nil {
		return nil, nil, err
	}
	id, err := x.tokenIDArg("id")
	if err != nil {
		return nil, nil, err
	}
	data, err := x.dataArg("data")
	if err != nil {
		return nil, nil, err
	}
	if err := x.gas.ChargeTokens(1); err != nil {
		return nil, nil, err
	}
	if err := x.gas.ChargeData(data); err != nil {
		return nil, nil, err
	}
	events, err := x.ledger.Transfer(x.call.Caller, to, id, data)
	if err != nil {
		return nil, nil, err
	}
	return ir.IRObject{}, events, nil
}

func runApprove(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	operator, err := x.accountArg("operator")
	if err != nil {
		return nil, nil, err
	}
	id, err := x.tokenIDArg("id")
	if err != nil {
		return nil, nil, err
	}
	approved, err := x.boolArg("approved")
	if err != nil {
		return nil, nil, err
	}
	events, err := x.ledger.Approve(x.call.Caller, operator, id, approved)
	if err != nil {
		return nil, nil, err
	}
	return ir.IRObject{}, events, nil
}

func readInt(get func(l *ledger.Ledger) int64) handler {
	return func(x *execution) (ir.IRObject, []ir.Event, error) {
		if err := x.gas.ChargeBase(); err != nil {
			return nil, nil, err
		}
		return value(ir.IRInt(get(x.ledger))), noEvents(), nil
	}
}

func readString(get func(l *ledger.Ledger) string) handler {
	return func(x *execution) (ir.IRObject, []ir.Event, error) {
		if err := x.gas.ChargeBase(); err != nil {
			return nil, nil, err
		}
		return value(ir.IRString(get(x.ledger))), noEvents(), nil
	}
}

func runBalanceOf(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	account, err := x.accountArg("account")
	if err != nil {
		return nil, nil, err
	}
	return value(ir.IRInt(x.ledger.BalanceOf(account))), noEvents(), nil
}

func runOwnerOf(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	id, err := x.tokenIDArg("id")
	if err != nil {
		return nil, nil, err
	}
	owner, err := x.ledger.OwnerOf(id)
	if err != nil {
		return nil, nil, err
	}
	return value(ir.IRString(owner)), noEvents(), nil
}

func runTokenURI(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	id, err := x.tokenIDArg("id")
	if err != nil {
		return nil, nil, err
	}
	uri, err := x.ledger.TokenURI(id)
	if err != nil {
		return nil, nil, err
	}
	return value(ir.IRString(uri)), noEvents(), nil
}

func runAllowance(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	owner, err := x.accountArg("owner")
	if err != nil {
		return nil, nil, err
	}
	operator, err := x.accountArg("operator")
	if err != nil {
		return nil, nil, err
	}
	id, err := x.tokenIDArg("id")
	if err != nil {
		return nil, nil, err
	}
	return value(ir.IRBool(x.ledger.Allowance(owner, operator, id))), noEvents(), nil
}

func runGetAttribute(x *execution) (ir.IRObject, []ir.Event, error) {
	if err := x.gas.ChargeBase(); err != nil {
		return nil, nil, err
	}
	collectionID, err := x.stringArg("collectionId")
	if err != nil {
		return nil, nil, err
	}
	key, err := x.stringArg("key")
	if err != nil {
		return nil, nil, err
	}
	return value(ir.IRString(x.ledger.Attribute(collectionID, key))), noEvents(), nil
}

// Argument decoding. Every failure is a BAD_ARGS RuntimeError.

func (x *execution) badArgs(err error) error {
	re := newRuntimeError(ErrCodeBadArgs, x.call.Method, "%v", err)
	re.FlowToken = x.call.FlowToken
	return re
}

func (x *execution) stringArg(key string) (string, error) {
	s, err := x.call.Args.String(key)
	if err != nil {
		return "", x.badArgs(err)
	}
	return s, nil
}

func (x *execution) accountArg(key string) (ir.Account, error) {
	s, err := x.stringArg(key)
	return ir.Account(s), err
}

func (x *execution) intArg(key string) (int64, error) {
	n, err := x.call.Args.Int(key)
	if err != nil {
		return 0, x.badArgs(err)
	}
	return n, nil
}

func (x *execution) optionalIntArg(key string) (int64, bool, error) {
	if _, ok := x.call.Args[key]; !ok {
		return 0, false, nil
	}
	n, err := x.intArg(key)
	return n, err == nil, err
}

func (x *execution) boolArg(key string) (bool, error) {
	b, err := x.call.Args.Bool(key)
	if err != nil {
		return false, x.badArgs(err)
	}
	return b, nil
}

// tokenIDArg decodes a token id. Negative values cannot name a token; 0 is
// passed through so the ledger reports TokenNotFound.
func (x *execution) tokenIDArg(key string) (ledger.TokenID, error) {
	n, err := x.intArg(key)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		re := newRuntimeError(ErrCodeBadArgs, x.call.Method, "field %q: token id must not be negative", key)
		re.FlowToken = x.call.FlowToken
		return 0, re
	}
	return ledger.TokenID(n), nil
}

// dataArg decodes an optional opaque payload, given either as a string or
// as an array of byte values.
func (x *execution) dataArg(key string) ([]byte, error) {
	v, ok := x.call.Args[key]
	if !ok {
		return nil, nil
	}
	switch d := v.(type) {
	case ir.IRString:
		return []byte(d), nil
	case ir.IRArray:
		data := make([]byte, len(d))
		for i, elem := range d {
			b, ok := elem.(ir.IRInt)
			if !ok || b < 0 || b > 255 {
				re := newRuntimeError(ErrCodeBadArgs, x.call.Method, "field %q: element %d is not a byte", key, i)
				re.FlowToken = x.call.FlowToken
				return nil, re
			}
			data[i] = byte(b)
		}
		return data, nil
	}
	re := newRuntimeError(ErrCodeBadArgs, x.call.Method, "field %q: expected string or byte array, got %T", key, v)
	re.FlowToken = x.call.FlowToken
	return nil, re
}
