package main

import (
	"context"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/satstash/satstash/lib/service"
	"github.com/satstash/satstash/lnd"
)

func InitLNDClient(c *service.Config, ctx context.Context) (result lnd.LightningClientWrapper, err error) {
	client, err := lnd.NewLNDclient(lnd.LNDoptions{
		Address:      c.LNDAddress,
		MacaroonFile: c.LNDMacaroonFile,
		MacaroonHex:  c.LNDMacaroonHex,
		CertFile:     c.LNDCertFile,
		CertHex:      c.LNDCertHex,
	}, ctx)
	if err != nil {
		return nil, err
	}
	getInfo, err := client.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, err
	}
	client.IdentityPubkey = getInfo.IdentityPubkey
	return client, nil
}
