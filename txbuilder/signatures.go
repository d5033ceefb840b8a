package txbuilder

import (
	"encoding/json"
	"fmt"
	"math/big"

	"zkapp-node/common"

	"github.com/iden3/go-iden3-crypto/babyjub"
)

func indexKeys(keys []*babyjub.PrivateKey) map[common.PublicKey]*babyjub.PrivateKey {
	index := make(map[common.PublicKey]*babyjub.PrivateKey, len(keys))
	for _, sk := range keys {
		index[common.PublicKeyFromPrivate(sk)] = sk
	}
	return index
}

func resolveKey(explicit *babyjub.PrivateKey, pk common.PublicKey,
	index map[common.PublicKey]*babyjub.PrivateKey) (*babyjub.PrivateKey, error) {
	if explicit != nil {
		return explicit, nil
	}
	if sk, ok := index[pk]; ok {
		return sk, nil
	}
	return nil, common.Wrap(fmt.Errorf("%w for account %s",
		common.ErrMissingPrivateKey, pk))
}

// AddMissingSignatures resolves every pending signature intent in the
// command. The input is cloned, never mutated, so the pending forest stays
// reusable. Both commitments are computed once: nodes bound to the full
// transaction sign the full commitment, the rest sign the forest commitment
// alone. The fee payer always signs the full commitment.
func AddMissingSignatures(cmd *common.ZkappCommand,
	extraKeys []*babyjub.PrivateKey) (*common.ZkappCommand, error) {
	out := cmd.Clone()
	partial, err := out.Commitment()
	if err != nil {
		return nil, err
	}
	full, err := out.FullCommitment()
	if err != nil {
		return nil, err
	}
	index := indexKeys(extraKeys)

	if out.FeePayer.Signature == nil {
		lazyKey, _ := out.FeePayer.LazyKey()
		sk, err := resolveKey(lazyKey, out.FeePayer.Body.PublicKey, index)
		if err != nil {
			return nil, err
		}
		out.FeePayer.FinalizeSignature(common.SignCommitment(sk, full))
	}

	var signErr error
	out.AccountUpdates.ForEach(func(u *common.AccountUpdate) {
		if signErr != nil {
			return
		}
		intent, ok := u.Lazy.(common.LazySignature)
		if !ok {
			return
		}
		sk, err := resolveKey(intent.PrivateKey, u.Body.PublicKey, index)
		if err != nil {
			signErr = err
			return
		}
		u.FinalizeSignature(common.SignCommitment(sk, commitmentFor(u, full, partial)))
	})
	if signErr != nil {
		return nil, signErr
	}
	return out, nil
}

func commitmentFor(u *common.AccountUpdate, full, partial *big.Int) *big.Int {
	if u.Body.UseFullCommitment {
		return full
	}
	return partial
}

// SignCommandJSON signs an externally-supplied transaction for one
// keyholder: the fee payer body when its public key matches, then every
// account update whose public key matches and which carries no finalized
// proof. The result is the modified transaction JSON, enabling incremental
// multi-party signing.
func SignCommandJSON(data []byte, sk *babyjub.PrivateKey) ([]byte, error) {
	var cmd common.ZkappCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, common.Wrap(err)
	}
	partial, err := cmd.Commitment()
	if err != nil {
		return nil, err
	}
	full, err := cmd.FullCommitment()
	if err != nil {
		return nil, err
	}
	pk := common.PublicKeyFromPrivate(sk)

	if cmd.FeePayer.Body.PublicKey == pk {
		cmd.FeePayer.FinalizeSignature(common.SignCommitment(sk, full))
	}
	cmd.AccountUpdates.ForEach(func(u *common.AccountUpdate) {
		if u.Body.PublicKey != pk {
			return
		}
		if u.Authorization != nil && u.Authorization.Proof != nil {
			return
		}
		u.FinalizeSignature(common.SignCommitment(sk, commitmentFor(u, full, partial)))
	})
	signed, err := json.Marshal(&cmd)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return signed, nil
}
