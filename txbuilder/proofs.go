package txbuilder

import (
	"context"
	"encoding/json"
	"time"

	"zkapp-node/common"
	"zkapp-node/log"
	"zkapp-node/metric"
	"zkapp-node/prover"
)

// ProofConfig controls the proof pipeline. With ProofsEnabled false a fixed
// placeholder artifact is substituted for every proof, for local testing
// without proving cost.
type ProofConfig struct {
	ProofsEnabled bool
}

// AddMissingProofs resolves every pending proof intent, strictly serially in
// forest order: the proving engine keeps ambient memoization state, so the
// session is held from input submission until the artifact is collected.
// The input command is cloned, never mutated. A prover failure is logged
// with its method name and re-thrown, aborting the pipeline; earlier nodes
// finalized in the same run are not rolled back.
func AddMissingProofs(ctx context.Context, cmd *common.ZkappCommand,
	registry *prover.Registry, session *prover.Session,
	cfg ProofConfig) (*common.ZkappCommand, error) {
	out := cmd.Clone()
	for _, u := range out.AccountUpdates.FlatList() {
		intent, ok := u.Lazy.(common.LazyProof)
		if !ok {
			continue
		}
		proof, err := proveUpdate(ctx, u, intent, registry, session, cfg)
		if err != nil {
			log.Errorw("proof generation failed",
				"contractClass", intent.ContractClass,
				"method", intent.MethodName, "err", err)
			return nil, err
		}
		u.FinalizeProof(proof)
	}
	return out, nil
}

func proveUpdate(ctx context.Context, u *common.AccountUpdate,
	intent common.LazyProof, registry *prover.Registry, session *prover.Session,
	cfg ProofConfig) (common.HexBytes, error) {
	if !cfg.ProofsEnabled {
		return marshalProof(prover.PlaceholderProof())
	}
	method, err := registry.Lookup(intent.ContractClass, intent.MethodName)
	if err != nil {
		return nil, err
	}
	input, err := proofInput(u, intent)
	if err != nil {
		return nil, err
	}

	if err := session.Acquire(ctx); err != nil {
		return nil, err
	}
	defer session.Release()
	defer metric.MeasureDuration(metric.WaitServerProof, time.Now(),
		intent.ContractClass, intent.MethodName)

	if err := method.Client.WaitReady(ctx); err != nil {
		return nil, err
	}
	if err := method.Client.CalculateProof(ctx, input); err != nil {
		return nil, err
	}
	proof, _, err := method.Client.GetProof(ctx)
	if err != nil {
		return nil, err
	}
	return marshalProof(proof)
}

// proofInput builds the public input binding the proof to this exact update:
// its body hash and its children commitment
func proofInput(u *common.AccountUpdate, intent common.LazyProof) (*prover.ProofInput, error) {
	bodyHash, err := u.Hash()
	if err != nil {
		return nil, err
	}
	childrenHash, err := common.HashChildren(u, false)
	if err != nil {
		return nil, err
	}
	return &prover.ProofInput{
		PublicInputs:   prover.PublicInputs{bodyHash, childrenHash},
		MethodName:     intent.MethodName,
		Args:           intent.Args,
		MemoizedValues: intent.MemoizedValues,
		Blinding:       intent.Blinding,
		PreviousProofs: intent.PreviousProofs,
	}, nil
}

func marshalProof(p *prover.Proof) (common.HexBytes, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return common.HexBytes(raw), nil
}
