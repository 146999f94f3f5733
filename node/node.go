package node

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/RGafiyatullin/redstone-sequencer/sequencer"
)

// Config carries the listen addresses of the two RPC endpoints and the
// engine authentication secret.
type Config struct {
	EngineAddr    string // bind address of the authenticated engine endpoint
	EthAddr       string // bind address of the public eth endpoint
	JWTSecretPath string
}

// Node serves the sequencer over two HTTP endpoints: the JWT-authenticated
// engine API for the consensus layer and the open eth API for users.
type Node struct {
	engineSrv *http.Server
	ethSrv    *http.Server
}

func New(cfg Config, eng *sequencer.Engine) (*Node, error) {
	secret, err := LoadOrGenerateJWTSecret(cfg.JWTSecretPath)
	if err != nil {
		return nil, err
	}

	// The consensus layer speaks both namespaces over the authenticated
	// endpoint; users only get eth.
	engineRPC := rpc.NewServer()
	if err := engineRPC.RegisterName("engine", sequencer.NewEngineAPI(eng)); err != nil {
		return nil, err
	}
	if err := engineRPC.RegisterName("eth", sequencer.NewEthAPI(eng)); err != nil {
		return nil, err
	}

	ethRPC := rpc.NewServer()
	if err := ethRPC.RegisterName("eth", sequencer.NewEthAPI(eng)); err != nil {
		return nil, err
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"*"},
	})

	return &Node{
		engineSrv: &http.Server{
			Addr:              cfg.EngineAddr,
			Handler:           newJWTHandler(secret, engineRPC),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ethSrv: &http.Server{
			Addr:              cfg.EthAddr,
			Handler:           corsHandler.Handler(ethRPC),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Run serves both endpoints until the context is cancelled, then shuts them
// down gracefully.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Engine API listening", "addr", n.engineSrv.Addr)
		if err := n.engineSrv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("Eth API listening", "addr", n.ethSrv.Addr)
		if err := n.ethSrv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.engineSrv.Shutdown(shutdownCtx)
		n.ethSrv.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}
