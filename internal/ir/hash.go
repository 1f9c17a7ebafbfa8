package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for changing the hashed shape later.
const (
	DomainCall       = "shiden34/call/v1"
	DomainReceipt    = "shiden34/receipt/v1"
	DomainCollection = "shiden34/collection/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data), hex encoded.
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CallID computes the content-addressed ID of a call.
// The ID field of c is ignored; every other field participates.
func CallID(c Call) (string, error) {
	args := c.Args
	if args == nil {
		args = IRObject{}
	}
	obj := IRObject{
		"flow_token": IRString(c.FlowToken),
		"kind":       IRString(c.Kind),
		"method":     IRString(c.Method),
		"caller":     IRString(c.Caller),
		"args":       args,
		"value":      IRInt(c.Value),
		"gas_limit":  IRInt(c.GasLimit),
		"seq":        IRInt(c.Seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CallID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCall, canonical), nil
}

// ReceiptID computes the content-addressed ID of a receipt.
// The receipt links to its call through callID. The ID field of r is ignored.
func ReceiptID(r Receipt) (string, error) {
	result := r.Result
	if result == nil {
		result = IRObject{}
	}
	obj := IRObject{
		"call_id":      IRString(r.CallID),
		"outcome":      IRString(r.Outcome),
		"result":       result,
		"events":       EventsValue(r.Events),
		"gas_required": IRInt(r.GasRequired),
		"seq":          IRInt(r.Seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ReceiptID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainReceipt, canonical), nil
}

// CollectionID derives the identifier of a collection from its immutable
// parameters and its creator.
func CollectionID(name, symbol, baseURI string, maxSupply int64, owner Account) (string, error) {
	obj := IRObject{
		"name":       IRString(name),
		"symbol":     IRString(symbol),
		"base_uri":   IRString(baseURI),
		"max_supply": IRInt(maxSupply),
		"owner":      IRString(owner),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CollectionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCollection, canonical), nil
}

// MustCallID is like CallID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCallID(c Call) string {
	id, err := CallID(c)
	if err != nil {
		panic(err)
	}
	return id
}

// MustReceiptID is like ReceiptID but panics on error.
func MustReceiptID(r Receipt) string {
	id, err := ReceiptID(r)
	if err != nil {
		panic(err)
	}
	return id
}

// MustCollectionID is like CollectionID but panics on error.
func MustCollectionID(name, symbol, baseURI string, maxSupply int64, owner Account) string {
	id, err := CollectionID(name, symbol, baseURI, maxSupply, owner)
	if err != nil {
		panic(err)
	}
	return id
}
