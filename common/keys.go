package common

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/iden3/go-iden3-crypto/babyjub"
)

// PublicKey is a compressed BabyJubJub public key. It identifies an account
// together with a token id.
type PublicKey babyjub.PublicKeyComp

// EmptyPublicKey is the dummy placeholder key: the all-zero compressed key,
// which is a valid point in the curve so it never fails to decompress. Any
// account update addressed to it is unconditionally inert: flattening and
// children commitments skip it.
var EmptyPublicKey = PublicKey(babyjub.PublicKeyComp([32]byte{}))

// IsEmpty returns true when the key is the dummy placeholder
func (pk PublicKey) IsEmpty() bool {
	return pk == EmptyPublicKey
}

// Fields returns the (sign, y) field element representation of the key, as
// used in commitments
func (pk PublicKey) Fields() (*big.Int, *big.Int) {
	sign, y := babyjub.UnpackSignY(babyjub.PublicKeyComp(pk))
	return BoolToField(sign), y
}

// Decompress returns the uncompressed point, failing for byte strings that
// are not on the curve
func (pk PublicKey) Decompress() (*babyjub.PublicKey, error) {
	comp := babyjub.PublicKeyComp(pk)
	point, err := comp.Decompress()
	if err != nil {
		return nil, Wrap(err)
	}
	return point, nil
}

// Verify checks the signature over msg against this key
func (pk PublicKey) Verify(msg *big.Int, sig Signature) bool {
	point, err := pk.Decompress()
	if err != nil {
		return false
	}
	comp := babyjub.SignatureComp(sig)
	decSig, err := comp.Decompress()
	if err != nil {
		return false
	}
	return point.VerifyPoseidon(msg, decSig)
}

// String returns a shortened hex representation for logs
func (pk PublicKey) String() string {
	h := hexutil.Encode(pk[:])
	return h[:10] + "..." + h[len(h)-4:]
}

// MarshalJSON implements json.Marshaler
func (pk PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.Encode(pk[:]))
}

// UnmarshalJSON implements json.Unmarshaler, rejecting strings that are not
// exactly 32 hex-encoded bytes or that do not decompress to a curve point
func (pk *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return Wrap(err)
	}
	decoded, err := hexutil.Decode(s)
	if err != nil {
		return Wrap(err)
	}
	if len(decoded) != 32 {
		return Wrap(fmt.Errorf("invalid public key length %d, expected 32", len(decoded)))
	}
	var comp babyjub.PublicKeyComp
	copy(comp[:], decoded)
	if comp != babyjub.PublicKeyComp([32]byte{}) {
		if _, err := comp.Decompress(); err != nil {
			return Wrap(fmt.Errorf("invalid public key encoding: %w", err))
		}
	}
	*pk = PublicKey(comp)
	return nil
}

// PublicKeyFromPrivate compresses the public key of the given private key
func PublicKeyFromPrivate(sk *babyjub.PrivateKey) PublicKey {
	return PublicKey(sk.Public().Compress())
}

// PublicKeyFromFields packs the (sign, y) field pair back into a compressed
// key, the inverse of Fields
func PublicKeyFromFields(sign, y *big.Int) PublicKey {
	return PublicKey(babyjub.PackSignY(sign.Sign() != 0, y))
}

// Signature is a compressed BabyJubJub signature over a Poseidon commitment
type Signature babyjub.SignatureComp

// EmptySignature is the zero signature, used as the dummy value of
// unauthorized slots
var EmptySignature = Signature(babyjub.SignatureComp([64]byte{}))

// SignCommitment signs the given commitment with the private key
func SignCommitment(sk *babyjub.PrivateKey, msg *big.Int) Signature {
	return Signature(sk.SignPoseidon(msg).Compress())
}

// MarshalJSON implements json.Marshaler
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.Encode(s[:]))
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return Wrap(err)
	}
	decoded, err := hexutil.Decode(str)
	if err != nil {
		return Wrap(err)
	}
	if len(decoded) != 64 {
		return Wrap(fmt.Errorf("invalid signature length %d, expected 64", len(decoded)))
	}
	copy(s[:], decoded)
	return nil
}
