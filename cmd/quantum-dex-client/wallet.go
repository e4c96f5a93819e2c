package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"

	clientconfig "github.com/quantumauth-io/quantum-dex-client/cmd/quantum-dex-client/config"
	"github.com/quantumauth-io/quantum-dex-client/internal/gateway"
	"github.com/quantumauth-io/quantum-dex-client/internal/gateway/localwallet"
	"github.com/quantumauth-io/quantum-dex-client/internal/gateway/rpcwallet"
	"github.com/quantumauth-io/quantum-dex-client/internal/ledger"
	"github.com/quantumauth-io/quantum-dex-client/internal/networks"
	"github.com/quantumauth-io/quantum-dex-client/internal/securefile"
)

// runnableGateway is a gateway with a background loop and resources to free.
type runnableGateway interface {
	gateway.Gateway
	Run(ctx context.Context)
	Close()
}

func openGateway(ctx context.Context, cfg *clientconfig.Config, nets *networks.Registry, pool *ledger.Pool) (runnableGateway, error) {
	s := cfg.ClientSettings

	switch s.Gateway {
	case clientconfig.GatewayLocal:
		keyPath := s.KeyPath
		if keyPath == "" {
			p, err := localwallet.KeyPath()
			if err != nil {
				return nil, err
			}
			keyPath = p
		}

		prompter := localwallet.NewTermPrompter()
		if err := ensureKeyFile(keyPath, prompter); err != nil {
			return nil, err
		}

		w, err := localwallet.New(localwallet.Config{
			KeyPath:      keyPath,
			Registry:     nets,
			Backends:     pool,
			Prompter:     prompter,
			Chains:       s.LocalChains,
			DefaultChain: s.DefaultChain,
		})
		if err != nil {
			return nil, err
		}
		return &localGateway{Wallet: w}, nil

	default:
		return rpcwallet.Dial(ctx, s.WalletRPC, rpcwallet.Options{
			PollInterval:   s.PollInterval,
			RequestTimeout: s.RequestTimeout,
		})
	}
}

// ensureKeyFile offers to create or import a wallet when none exists at path.
func ensureKeyFile(path string, p localwallet.Prompter) error {
	if securefile.Exists(path) {
		return nil
	}

	create, err := p.Confirm(fmt.Sprintf("No wallet found at %s. Create a new one?", path))
	if err != nil {
		return err
	}
	var importHex []byte
	if !create {
		ok, err := p.Confirm("Import an existing private key instead?")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no wallet at %s", path)
		}
		if importHex, err = p.Password("Private key (hex): "); err != nil {
			return err
		}
		defer zero(importHex)
	}

	pw, err := localwallet.NewPasswordTwice(p)
	if err != nil {
		return err
	}
	defer zero(pw)

	var addr common.Address
	if create {
		addr, err = localwallet.Create(path, pw)
	} else {
		addr, err = localwallet.Import(path, string(importHex), pw)
	}
	if err != nil {
		return err
	}

	log.Info("local wallet ready", "address", addr.Hex(), "path", path, "imported", !create)
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// localGateway locks the in-process wallet when the daemon stops.
type localGateway struct {
	*localwallet.Wallet
}

func (g *localGateway) Run(ctx context.Context) {
	<-ctx.Done()
	g.Lock()
}

func (g *localGateway) Close() {}
