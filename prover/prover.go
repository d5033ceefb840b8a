package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"zkapp-node/common"

	"github.com/dghubble/sling"
)

// Proof is the artifact returned by the proof server
type Proof struct {
	PiA      [3]*big.Int    `json:"pi_a"`
	PiB      [3][2]*big.Int `json:"pi_b"`
	PiC      [3]*big.Int    `json:"pi_c"`
	Protocol string         `json:"protocol"`
}

// PublicInputs are the public inputs of the proof: the update's body hash
// and its children commitment
type PublicInputs []*big.Int

// ProofInput is everything the proof server needs to run one method proof
type ProofInput struct {
	PublicInputs   PublicInputs      `json:"publicInputs"`
	MethodName     string            `json:"methodName"`
	Args           []*big.Int        `json:"args"`
	MemoizedValues []*big.Int        `json:"memoizedValues"`
	Blinding       *big.Int          `json:"blinding"`
	PreviousProofs []common.HexBytes `json:"previousProofs"`
}

// Client is the interface to a server that calculates zk proofs
type Client interface {
	// Non-blocking
	CalculateProof(ctx context.Context, input *ProofInput) error
	// Blocking.  Returns the Proof and Public Data (public inputs)
	GetProof(ctx context.Context) (*Proof, []*big.Int, error)
	// Non-Blocking
	Cancel(ctx context.Context) error
	// Blocking
	WaitReady(ctx context.Context) error
}

// StatusCode is the status string of the ProofServer
type StatusCode string

const (
	// StatusCodeAborted means prover is ready to take new proof. Previous
	// proof was aborted.
	StatusCodeAborted StatusCode = "aborted"
	// StatusCodeBusy means prover is busy computing proof.
	StatusCodeBusy StatusCode = "busy"
	// StatusCodeFailed means prover is ready to take new proof. Previous
	// proof failed
	StatusCodeFailed StatusCode = "failed"
	// StatusCodeSuccess means prover is ready to take new proof. Previous
	// proof succeeded
	StatusCodeSuccess StatusCode = "success"
	// StatusCodeUnverified means prover is ready to take new proof.
	// Previous proof was unverified
	StatusCodeUnverified StatusCode = "unverified"
	// StatusCodeUninitialized means prover is not initialized
	StatusCodeUninitialized StatusCode = "uninitialized"
	// StatusCodeUndefined means prover is in an undefined state. Most
	// likely is booting up. Keep trying
	StatusCodeUndefined StatusCode = "undefined"
	// StatusCodeInitializing means prover is initializing and not ready yet
	StatusCodeInitializing StatusCode = "initializing"
	// StatusCodeReady means prover initialized and ready to do first proof
	StatusCodeReady StatusCode = "ready"
)

// IsReady returns true when the prover can accept a new proof
func (status StatusCode) IsReady() bool {
	if status == StatusCodeAborted || status == StatusCodeFailed ||
		status == StatusCodeSuccess || status == StatusCodeUnverified ||
		status == StatusCodeReady {
		return true
	}
	return false
}

// IsInitialized returns true when the prover is initialized
func (status StatusCode) IsInitialized() bool {
	if status == StatusCodeUninitialized || status == StatusCodeUndefined ||
		status == StatusCodeInitializing {
		return false
	}
	return true
}

// Status is the return struct for the status API endpoint
type Status struct {
	Status  StatusCode `json:"status"`
	Proof   string     `json:"proof"`
	PubData string     `json:"pubData"`
}

// ErrorServer is the return struct for an API error
type ErrorServer struct {
	Status  StatusCode `json:"status"`
	Message string     `json:"msg"`
}

// Error returns the ErrorServer formatted as a string
func (e ErrorServer) Error() string {
	return fmt.Sprintf("server proof status (%v): %v", e.Status, e.Message)
}

type apiMethod string

const (
	// GET is an HTTP GET
	GET apiMethod = "GET"
	// POST is an HTTP POST with maybe JSON body
	POST apiMethod = "POST"
)

// ProofServerClient contains the data related to a ProofServerClient
type ProofServerClient struct {
	URL          string
	client       *sling.Sling
	pollInterval time.Duration
}

// NewProofServerClient creates a new ServerProof
func NewProofServerClient(URL string, pollInterval time.Duration) *ProofServerClient {
	if URL[len(URL)-1] != '/' {
		URL += "/"
	}
	client := sling.New().Base(URL)
	return &ProofServerClient{URL: URL, client: client, pollInterval: pollInterval}
}

func (p *ProofServerClient) apiRequest(ctx context.Context, method apiMethod, path string,
	body interface{}, ret interface{}) error {
	path = path[1:] // remove connecting with Base
	var errSrv ErrorServer
	var req *sling.Sling
	switch method {
	case GET:
		req = p.client.New().Get(path)
	case POST:
		req = p.client.New().Post(path)
	default:
		return common.Wrap(fmt.Errorf("invalid http method: %v", method))
	}
	req = req.BodyJSON(body)
	res, err := req.Request()
	if err != nil {
		return common.Wrap(err)
	}
	res = res.WithContext(ctx)
	resp, err := req.Do(res, ret, &errSrv)
	if err != nil {
		return common.Wrap(err)
	}
	defer resp.Body.Close()
	if !(200 <= resp.StatusCode && resp.StatusCode < 300) {
		return common.Wrap(errSrv)
	}
	return nil
}

func (p *ProofServerClient) apiStatus(ctx context.Context) (*Status, error) {
	var status Status
	return &status, common.Wrap(p.apiRequest(ctx, GET, "/status", nil, &status))
}

func (p *ProofServerClient) apiCancel(ctx context.Context) error {
	return common.Wrap(p.apiRequest(ctx, POST, "/cancel", nil, nil))
}

func (p *ProofServerClient) apiInput(ctx context.Context, input *ProofInput) error {
	return common.Wrap(p.apiRequest(ctx, POST, "/input", input, nil))
}

// CalculateProof sends the input to the proof server; the proof is computed
// in the background and collected with GetProof
func (p *ProofServerClient) CalculateProof(ctx context.Context, input *ProofInput) error {
	return common.Wrap(p.apiInput(ctx, input))
}

// GetProof polls the server status until the proof of the last input is done
func (p *ProofServerClient) GetProof(ctx context.Context) (*Proof, []*big.Int, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		status, err := p.apiStatus(ctx)
		if err != nil {
			return nil, nil, common.Wrap(err)
		}
		if status.Status == StatusCodeSuccess {
			var proof Proof
			if err := jsonUnmarshal(status.Proof, &proof); err != nil {
				return nil, nil, err
			}
			var pubInputs PublicInputs
			if err := jsonUnmarshal(status.PubData, &pubInputs); err != nil {
				return nil, nil, err
			}
			return &proof, pubInputs, nil
		} else if status.Status == StatusCodeFailed || status.Status == StatusCodeAborted {
			return nil, nil, common.Wrap(fmt.Errorf("proof generation failed with status %v",
				status.Status))
		}
		select {
		case <-ctx.Done():
			return nil, nil, common.Wrap(common.ErrDone)
		case <-ticker.C:
		}
	}
}

// Cancel asks the server to abort the proof in progress
func (p *ProofServerClient) Cancel(ctx context.Context) error {
	return common.Wrap(p.apiCancel(ctx))
}

// WaitReady waits until the server can accept a new input
func (p *ProofServerClient) WaitReady(ctx context.Context) error {
	for {
		status, err := p.apiStatus(ctx)
		if err != nil {
			return common.Wrap(err)
		}
		if !status.Status.IsInitialized() {
			return common.Wrap(fmt.Errorf("proof server is not initialized"))
		}
		if status.Status.IsReady() {
			return nil
		}
		select {
		case <-ctx.Done():
			return common.Wrap(common.ErrDone)
		case <-time.After(p.pollInterval):
		}
	}
}

// PlaceholderProof is the fixed artifact substituted for a real proof when
// proving is disabled
func PlaceholderProof() *Proof {
	zero := big.NewInt(0)
	return &Proof{
		PiA:      [3]*big.Int{zero, zero, zero},
		PiB:      [3][2]*big.Int{{zero, zero}, {zero, zero}, {zero, zero}},
		PiC:      [3]*big.Int{zero, zero, zero},
		Protocol: "placeholder",
	}
}

// MockClient is a mock proof server to be used in tests.  It doesn't
// calculate anything
type MockClient struct {
	counter int64
	Delay   time.Duration
	input   *ProofInput
}

// CalculateProof records the input and returns
func (p *MockClient) CalculateProof(ctx context.Context, input *ProofInput) error {
	p.input = input
	return nil
}

// GetProof waits Delay and returns a deterministic fake proof
func (p *MockClient) GetProof(ctx context.Context) (*Proof, []*big.Int, error) {
	atomic.AddInt64(&p.counter, 1)
	select {
	case <-ctx.Done():
		return nil, nil, common.Wrap(common.ErrDone)
	case <-time.After(p.Delay):
	}
	i := atomic.LoadInt64(&p.counter)
	v := big.NewInt(i)
	proof := PlaceholderProof()
	proof.PiA = [3]*big.Int{v, v, v}
	proof.Protocol = "mock"
	var pubInputs []*big.Int
	if p.input != nil {
		pubInputs = p.input.PublicInputs
	}
	return proof, pubInputs, nil
}

// Cancel does nothing
func (p *MockClient) Cancel(ctx context.Context) error {
	return nil
}

// WaitReady does nothing
func (p *MockClient) WaitReady(ctx context.Context) error {
	return nil
}

func jsonUnmarshal(data string, v interface{}) error {
	if data == "" {
		return common.Wrap(fmt.Errorf("proof server returned empty payload"))
	}
	return common.Wrap(json.Unmarshal([]byte(data), v))
}
