package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/satstash/satstash/lnd"
	"google.golang.org/grpc"
)

const mockIdentityPubkey = "02a0bc87a4a18688db53b4beb9fb0531336d1d1fb0e0dc4e078e1a1445dd6b2d6f"

type sendOutcome struct {
	payment *lnrpc.Payment
	err     error
}

// lndMock stands in for the node. Payment requests are opaque tokens
// registered in payReqs, so no bolt11 encoding happens in tests.
type lndMock struct {
	mu            sync.Mutex
	addIndex      uint64
	payReqs       map[string]*lnrpc.PayReq
	sendOutcomes  map[string]sendOutcome // payment hash hex -> scripted result
	sendCalls     int
	trackStreams  map[string]chan *lnrpc.Payment
	invoiceStream chan *lnrpc.Invoice
}

func newLndMock() *lndMock {
	return &lndMock{
		payReqs:       map[string]*lnrpc.PayReq{},
		sendOutcomes:  map[string]sendOutcome{},
		trackStreams:  map[string]chan *lnrpc.Payment{},
		invoiceStream: make(chan *lnrpc.Invoice, 16),
	}
}

func (m *lndMock) AddInvoice(ctx context.Context, req *lnrpc.Invoice, options ...grpc.CallOption) (*lnrpc.AddInvoiceResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addIndex++
	rHash := sha256.Sum256(req.RPreimage)
	paymentRequest := fmt.Sprintf("lnbcmockincoming%d", m.addIndex)
	m.payReqs[paymentRequest] = &lnrpc.PayReq{
		Destination: mockIdentityPubkey,
		PaymentHash: hex.EncodeToString(rHash[:]),
		NumSatoshis: req.Value,
		Description: req.Memo,
		Timestamp:   time.Now().Unix(),
		Expiry:      req.Expiry,
	}
	return &lnrpc.AddInvoiceResponse{
		RHash:          rHash[:],
		PaymentRequest: paymentRequest,
		AddIndex:       m.addIndex,
	}, nil
}

// registerExternalInvoice fabricates a payment request belonging to a
// foreign node and returns it together with its payment hash.
func (m *lndMock) registerExternalInvoice(amount int64, memo string) (paymentRequest, rHashHex string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addIndex++
	preimage := []byte(fmt.Sprintf("external-preimage-%d", m.addIndex))
	rHash := sha256.Sum256(preimage)
	rHashHex = hex.EncodeToString(rHash[:])
	paymentRequest = fmt.Sprintf("lnbcmockexternal%d", m.addIndex)
	m.payReqs[paymentRequest] = &lnrpc.PayReq{
		Destination: "03b54eac0ff632e966d65565a5b9f675de09e4f8f09ac900e464226d02a7cb2707",
		PaymentHash: rHashHex,
		NumSatoshis: amount,
		Description: memo,
		Timestamp:   time.Now().Unix(),
		Expiry:      3600,
	}
	return paymentRequest, rHashHex
}

func (m *lndMock) scriptSendOutcome(rHashHex string, payment *lnrpc.Payment, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendOutcomes[rHashHex] = sendOutcome{payment: payment, err: err}
}

func (m *lndMock) sendCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendCalls
}

func (m *lndMock) DecodeBolt11(ctx context.Context, bolt11 string) (*lnrpc.PayReq, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payReq, ok := m.payReqs[bolt11]
	if !ok {
		return nil, fmt.Errorf("unable to decode payment request")
	}
	return payReq, nil
}

func (m *lndMock) SendPayment(ctx context.Context, req *routerrpc.SendPaymentRequest, options ...grpc.CallOption) (*lnrpc.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls++

	var rHashHex string
	if req.PaymentRequest != "" {
		payReq, ok := m.payReqs[req.PaymentRequest]
		if !ok {
			return nil, fmt.Errorf("unknown payment request")
		}
		rHashHex = payReq.PaymentHash
	} else {
		rHashHex = hex.EncodeToString(req.PaymentHash)
	}

	outcome, ok := m.sendOutcomes[rHashHex]
	if !ok {
		// default: instant success, no routing fee
		return &lnrpc.Payment{
			PaymentHash: rHashHex,
			Status:      lnrpc.Payment_SUCCEEDED,
		}, nil
	}
	return outcome.payment, outcome.err
}

type mockInvoiceStream struct {
	ch chan *lnrpc.Invoice
}

func (s *mockInvoiceStream) Recv() (*lnrpc.Invoice, error) {
	invoice, ok := <-s.ch
	if !ok {
		return nil, io.EOF
	}
	return invoice, nil
}

func (m *lndMock) SubscribeInvoices(ctx context.Context, req *lnrpc.InvoiceSubscription, options ...grpc.CallOption) (lnd.SubscribeInvoicesWrapper, error) {
	return &mockInvoiceStream{ch: m.invoiceStream}, nil
}

type mockPaymentStream struct {
	ch chan *lnrpc.Payment
}

func (s *mockPaymentStream) Recv() (*lnrpc.Payment, error) {
	payment, ok := <-s.ch
	if !ok {
		return nil, io.EOF
	}
	return payment, nil
}

// paymentUpdates returns the channel feeding the tracking stream for the
// given payment hash, creating it on demand.
func (m *lndMock) paymentUpdates(rHashHex string) chan *lnrpc.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.trackStreams[rHashHex]
	if !ok {
		ch = make(chan *lnrpc.Payment, 4)
		m.trackStreams[rHashHex] = ch
	}
	return ch
}

func (m *lndMock) SubscribePayment(ctx context.Context, req *routerrpc.TrackPaymentRequest, options ...grpc.CallOption) (lnd.SubscribePaymentWrapper, error) {
	return &mockPaymentStream{ch: m.paymentUpdates(hex.EncodeToString(req.PaymentHash))}, nil
}

func (m *lndMock) GetInfo(ctx context.Context, req *lnrpc.GetInfoRequest, options ...grpc.CallOption) (*lnrpc.GetInfoResponse, error) {
	return &lnrpc.GetInfoResponse{IdentityPubkey: mockIdentityPubkey}, nil
}

func (m *lndMock) IsIdentityPubkey(pubkey string) bool {
	return pubkey == mockIdentityPubkey
}

func (m *lndMock) GetMainPubkey() string {
	return mockIdentityPubkey
}
