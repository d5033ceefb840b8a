package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
)

// MaxMemoLen is the maximum memo length in bytes
const MaxMemoLen = 32

// FeePayerBody is the distinguished body of the fee-paying update: no token,
// no state deltas, no preconditions beyond the implicit nonce claim. The fee
// payer always acts on the default token and always increments its nonce.
type FeePayerBody struct {
	PublicKey  PublicKey `json:"publicKey"`
	Fee        BigIntStr `json:"fee"`
	Nonce      Nonce     `json:"nonce"`
	ValidUntil *uint32   `json:"validUntil,omitempty"`
}

// FeePayer pairs the fee-paying body with its authorization. A fee payer is
// signature-only by construction: there is no proof slot on the type.
type FeePayer struct {
	Body      FeePayerBody `json:"body"`
	Signature *Signature   `json:"authorization,omitempty"`

	// pending signing intent; nil private key means "resolve from the
	// caller-supplied key set"
	lazyKey    *babyjub.PrivateKey
	hasLazySig bool
}

// NewFeePayer builds an unauthorized fee payer
func NewFeePayer(pk PublicKey, fee *big.Int, nonce Nonce) FeePayer {
	return FeePayer{Body: FeePayerBody{
		PublicKey: pk,
		Fee:       NewBigIntStr(fee),
		Nonce:     nonce,
	}}
}

// SetLazySignature records the signing intent, reopening any finalized
// signature
func (fp *FeePayer) SetLazySignature(sk *babyjub.PrivateKey) {
	fp.Signature = nil
	fp.lazyKey = sk
	fp.hasLazySig = true
}

// LazyKey returns the pending intent's key (possibly nil) and whether a
// pending intent exists at all
func (fp *FeePayer) LazyKey() (*babyjub.PrivateKey, bool) {
	return fp.lazyKey, fp.hasLazySig
}

// FinalizeSignature closes the fee payer's authorization
func (fp *FeePayer) FinalizeSignature(sig Signature) {
	fp.Signature = &sig
	fp.lazyKey = nil
	fp.hasLazySig = false
}

// Hash commits to the fee payer body
func (fp FeePayer) Hash() (*big.Int, error) {
	sign, y := fp.Body.PublicKey.Fields()
	fee, err := fp.Body.Fee.BigInt()
	if err != nil {
		return nil, err
	}
	validUntil := big.NewInt(0)
	if fp.Body.ValidUntil != nil {
		validUntil = big.NewInt(int64(*fp.Body.ValidUntil))
	}
	return HashFields(PrefixFeePayer,
		sign, y, fee, fp.Body.Nonce.BigInt(),
		BoolToField(fp.Body.ValidUntil != nil), validUntil)
}

// ZkappCommand is a whole pending transaction: the fee payer, the forest of
// account updates and a short memo
type ZkappCommand struct {
	FeePayer       FeePayer
	AccountUpdates *Forest
	Memo           string
}

// NewZkappCommand builds an empty transaction around a fee payer
func NewZkappCommand(feePayer FeePayer) *ZkappCommand {
	return &ZkappCommand{FeePayer: feePayer, AccountUpdates: NewForest()}
}

// SetMemo attaches the memo, enforcing the length cap
func (c *ZkappCommand) SetMemo(memo string) error {
	if len(memo) > MaxMemoLen {
		return Wrap(fmt.Errorf("memo longer than %d bytes", MaxMemoLen))
	}
	c.Memo = memo
	return nil
}

// forest returns the update forest, treating a nil forest (a zero-value
// command) as empty
func (c *ZkappCommand) forest() *Forest {
	if c.AccountUpdates == nil {
		return NewForest()
	}
	return c.AccountUpdates
}

// Clone deep-copies the command; node ids are preserved
func (c *ZkappCommand) Clone() *ZkappCommand {
	out := &ZkappCommand{
		FeePayer:       c.FeePayer,
		AccountUpdates: c.forest().Clone(),
		Memo:           c.Memo,
	}
	if c.FeePayer.Signature != nil {
		sig := *c.FeePayer.Signature
		out.FeePayer.Signature = &sig
	}
	return out
}

// MemoHash commits to the memo bytes, absorbed in 31-byte chunks
func (c *ZkappCommand) MemoHash() *big.Int {
	data := []byte(c.Memo)
	elems := make([]*big.Int, 0, len(data)/31+1)
	for start := 0; start < len(data); start += 31 {
		end := start + 31
		if end > len(data) {
			end = len(data)
		}
		elems = append(elems, new(big.Int).SetBytes(data[start:end]))
	}
	return MustHashFields(PrefixMemo, elems...)
}

// Commitment is the forest commitment alone. Nodes that do not use the full
// commitment sign this value, so a signature stays valid when only fee-payer
// material changes.
func (c *ZkappCommand) Commitment() (*big.Int, error) {
	return c.forest().Hash(false)
}

// FullCommitment binds the memo, the fee payer and the forest together. The
// fee payer and any node with UseFullCommitment set sign this value.
func (c *ZkappCommand) FullCommitment() (*big.Int, error) {
	commitment, err := c.Commitment()
	if err != nil {
		return nil, err
	}
	feePayerHash, err := c.FeePayer.Hash()
	if err != nil {
		return nil, err
	}
	return HashFields(PrefixFullCommit, c.MemoHash(), feePayerHash, commitment)
}

// flatAccountUpdate is the wire form of one forest node: the tree shape is
// carried by Body.CallDepth, not by nesting
type flatAccountUpdate struct {
	Body          Body           `json:"body"`
	Authorization *Authorization `json:"authorization,omitempty"`
}

type zkappCommandJSON struct {
	FeePayer       FeePayer            `json:"feePayer"`
	AccountUpdates []flatAccountUpdate `json:"accountUpdates"`
	Memo           string              `json:"memo"`
}

// MarshalJSON emits the flattened wire form: a pre-order list of updates with
// recomputed call depths, dummy nodes dropped. Lazy intents never serialize;
// they hold private keys.
func (c *ZkappCommand) MarshalJSON() ([]byte, error) {
	flat := c.forest().FlatList()
	out := zkappCommandJSON{
		FeePayer:       c.FeePayer,
		AccountUpdates: make([]flatAccountUpdate, 0, len(flat)),
		Memo:           c.Memo,
	}
	for _, u := range flat {
		out.AccountUpdates = append(out.AccountUpdates, flatAccountUpdate{
			Body:          u.Body,
			Authorization: u.Authorization,
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the wire form strictly (unknown fields rejected) and
// rebuilds the forest from the call depths
func (c *ZkappCommand) UnmarshalJSON(data []byte) error {
	var wire zkappCommandJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return Wrap(err)
	}
	if len(wire.Memo) > MaxMemoLen {
		return Wrap(fmt.Errorf("memo longer than %d bytes", MaxMemoLen))
	}
	forest, err := forestFromFlat(wire.AccountUpdates)
	if err != nil {
		return err
	}
	c.FeePayer = wire.FeePayer
	c.AccountUpdates = forest
	c.Memo = wire.Memo
	return nil
}

// forestFromFlat rebuilds the tree from a depth-annotated pre-order list. A
// valid list starts at depth 0 and never jumps more than one level deeper
// between consecutive entries.
func forestFromFlat(flat []flatAccountUpdate) (*Forest, error) {
	forest := NewForest()
	var stack []*AccountUpdate
	for i, entry := range flat {
		depth := entry.Body.CallDepth
		if depth < 0 || depth > len(stack) {
			return nil, Wrap(fmt.Errorf("account update %d: call depth %d does not follow from depth %d",
				i, depth, len(stack)-1))
		}
		stack = stack[:depth]
		node := &AccountUpdate{
			Body:     entry.Body,
			Lazy:     LazyNone{},
			Children: Children{CallsType: CallsWitness},
			id:       nextUpdateID(),
		}
		if entry.Authorization != nil {
			auth := *entry.Authorization
			node.Authorization = &auth
		}
		if depth == 0 {
			forest.Append(node)
		} else {
			parent := stack[depth-1]
			node.parent = parent
			parent.Children.Updates = append(parent.Children.Updates, node)
		}
		stack = append(stack, node)
	}
	return forest, nil
}

// PrettyPrint renders the command as indented JSON with noise removed:
// kept/ignored wrappers and zero values are elided and long field elements
// are truncated. For debugging only; the output is not parseable back.
func (c *ZkappCommand) PrettyPrint() string {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<unprintable zkapp command: %v>", err)
	}
	var tree interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return string(raw)
	}
	tree = prettify(tree)
	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

const prettyDigestLen = 12

func prettify(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		// collapse explicit set-or-keep / or-ignore wrappers
		if isSome, ok := t["isSome"].(bool); ok && len(t) == 2 {
			if !isSome {
				return nil
			}
			return prettify(t["value"])
		}
		out := map[string]interface{}{}
		for k, val := range t {
			p := prettify(val)
			if isDefaultPretty(p) {
				continue
			}
			out[k] = p
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, val := range t {
			out = append(out, prettify(val))
		}
		return out
	case string:
		if len(t) > prettyDigestLen && isDigits(t) {
			return t[:prettyDigestLen] + ".."
		}
		return t
	default:
		return v
	}
}

func isDefaultPretty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == "" || t == "0"
	case float64:
		return t == 0
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	}
	return false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
