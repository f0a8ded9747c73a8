package lnd

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/lightningnetwork/lnd/zpay32"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"gopkg.in/macaroon.v2"
)

// LNDoptions are the options for the connection to the lnd node.
type LNDoptions struct {
	Address      string
	CertFile     string
	CertHex      string
	MacaroonFile string
	MacaroonHex  string
}

type LNDWrapper struct {
	client         lnrpc.LightningClient
	routerClient   routerrpc.RouterClient
	conn           *grpc.ClientConn
	IdentityPubkey string
}

func NewLNDclient(lndOptions LNDoptions, ctx context.Context) (result *LNDWrapper, err error) {
	// Get credentials either from a hex string or a file
	var creds credentials.TransportCredentials
	// if a hex string is provided
	if lndOptions.CertHex != "" {
		cp := x509.NewCertPool()
		cert, err := hex.DecodeString(lndOptions.CertHex)
		if err != nil {
			return nil, err
		}
		cp.AppendCertsFromPEM(cert)
		creds = credentials.NewClientTLSFromCert(cp, "")
		// if a path to a cert file is provided
	} else if lndOptions.CertFile != "" {
		credsFromFile, err := credentials.NewClientTLSFromFile(lndOptions.CertFile, "")
		if err != nil {
			return nil, err
		}
		creds = credsFromFile
	} else {
		// default to the system certificate pool
		cp, err := x509.SystemCertPool()
		if err != nil {
			return nil, err
		}
		creds = credentials.NewClientTLSFromCert(cp, "")
	}

	var macaroonData []byte
	if lndOptions.MacaroonHex != "" {
		macBytes, err := hex.DecodeString(lndOptions.MacaroonHex)
		if err != nil {
			return nil, err
		}
		macaroonData = macBytes
	} else if lndOptions.MacaroonFile != "" {
		macBytes, err := os.ReadFile(lndOptions.MacaroonFile)
		if err != nil {
			return nil, err
		}
		macaroonData = macBytes
	} else {
		return nil, fmt.Errorf("LND macaroon is missing")
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macaroonData); err != nil {
		return nil, err
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(macaroonCredential{macaroon: hex.EncodeToString(macaroonData)}),
	}
	conn, err := grpc.Dial(lndOptions.Address, opts...)
	if err != nil {
		return nil, err
	}

	return &LNDWrapper{
		conn:         conn,
		client:       lnrpc.NewLightningClient(conn),
		routerClient: routerrpc.NewRouterClient(conn),
	}, nil
}

type macaroonCredential struct {
	macaroon string
}

func (m macaroonCredential) RequireTransportSecurity() bool {
	return true
}

func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

func (wrapper *LNDWrapper) AddInvoice(ctx context.Context, req *lnrpc.Invoice, options ...grpc.CallOption) (*lnrpc.AddInvoiceResponse, error) {
	return wrapper.client.AddInvoice(ctx, req, options...)
}

// DecodeBolt11 decodes the payment request locally so invalid requests fail
// without a node round trip.
func (wrapper *LNDWrapper) DecodeBolt11(ctx context.Context, bolt11 string) (*lnrpc.PayReq, error) {
	if len(bolt11) < 4 {
		return nil, fmt.Errorf("payment request too short")
	}
	inv, err := zpay32.Decode(bolt11, ChainFromCurrency(bolt11[2:]))
	if err != nil {
		return nil, err
	}
	result := &lnrpc.PayReq{
		Destination: hex.EncodeToString(inv.Destination.SerializeCompressed()),
		Timestamp:   inv.Timestamp.Unix(),
		Expiry:      int64(inv.Expiry().Seconds()),
	}
	if inv.PaymentHash != nil {
		ph := *inv.PaymentHash
		result.PaymentHash = hex.EncodeToString(ph[:])
	}
	if inv.MilliSat != nil {
		result.NumSatoshis = int64(inv.MilliSat.ToSatoshis())
	}
	if inv.Description != nil {
		result.Description = *inv.Description
	}
	if inv.DescriptionHash != nil {
		dh := *inv.DescriptionHash
		result.DescriptionHash = hex.EncodeToString(dh[:])
	}
	return result, nil
}

// SendPayment submits the payment and blocks until the node reports a
// terminal status or the context deadline passes. If the deadline passes
// while the payment is still in flight (hodl invoices), the last in-flight
// update is returned so the caller can account for it as pending.
func (wrapper *LNDWrapper) SendPayment(ctx context.Context, req *routerrpc.SendPaymentRequest, options ...grpc.CallOption) (*lnrpc.Payment, error) {
	if req.TimeoutSeconds == 0 {
		req.TimeoutSeconds = 60
	}
	stream, err := wrapper.routerClient.SendPaymentV2(ctx, req, options...)
	if err != nil {
		return nil, err
	}
	var lastUpdate *lnrpc.Payment
	for {
		payment, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil && lastUpdate != nil && lastUpdate.Status == lnrpc.Payment_IN_FLIGHT {
				return lastUpdate, nil
			}
			return nil, err
		}
		switch payment.Status {
		case lnrpc.Payment_SUCCEEDED, lnrpc.Payment_FAILED:
			return payment, nil
		}
		lastUpdate = payment
	}
}

func (wrapper *LNDWrapper) SubscribeInvoices(ctx context.Context, req *lnrpc.InvoiceSubscription, options ...grpc.CallOption) (SubscribeInvoicesWrapper, error) {
	return wrapper.client.SubscribeInvoices(ctx, req, options...)
}

func (wrapper *LNDWrapper) SubscribePayment(ctx context.Context, req *routerrpc.TrackPaymentRequest, options ...grpc.CallOption) (SubscribePaymentWrapper, error) {
	return wrapper.routerClient.TrackPaymentV2(ctx, req, options...)
}

func (wrapper *LNDWrapper) GetInfo(ctx context.Context, req *lnrpc.GetInfoRequest, options ...grpc.CallOption) (*lnrpc.GetInfoResponse, error) {
	return wrapper.client.GetInfo(ctx, req, options...)
}

func (wrapper *LNDWrapper) IsIdentityPubkey(pubkey string) (isOurPubkey bool) {
	return pubkey == wrapper.IdentityPubkey
}

func (wrapper *LNDWrapper) GetMainPubkey() (pubkey string) {
	return wrapper.IdentityPubkey
}

func ChainFromCurrency(currency string) *chaincfg.Params {
	if strings.HasPrefix(currency, "bcrt") {
		return &chaincfg.RegressionNetParams
	} else if strings.HasPrefix(currency, "tb") {
		return &chaincfg.TestNet3Params
	} else if strings.HasPrefix(currency, "sb") {
		return &chaincfg.SimNetParams
	} else {
		return &chaincfg.MainNetParams
	}
}
