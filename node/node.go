// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package node assembles an authority from its configuration: the
// database-backed transaction state, the libp2p network service, the
// certificate syncer and the gossip orchestrator, managed as one
// service registry.
package node

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ChainSafe/filament/availability"
	"github.com/ChainSafe/filament/config"
	"github.com/ChainSafe/filament/config/genesis"
	"github.com/ChainSafe/filament/gossip"
	"github.com/ChainSafe/filament/network"
	"github.com/ChainSafe/filament/services"
	"github.com/ChainSafe/filament/state"
	"github.com/ChainSafe/filament/syncer"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	log "github.com/ChainSafe/log15"
)

var logger = log.New("pkg", "node")

// Node is a container for all the components of an authority node
type Node struct {
	Name     string
	Services *services.Registry

	wg      sync.WaitGroup
	started chan struct{}
}

// NewNode assembles an authority node from the provided configuration
// and its committee genesis file
func NewNode(cfg *config.Config) (*Node, error) {
	globalLvl, err := setupLogger(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Network.Committee == "" {
		return nil, fmt.Errorf("no committee genesis file configured")
	}

	gen, err := genesis.LoadGenesis(cfg.Network.Committee)
	if err != nil {
		return nil, err
	}

	cmt, err := gen.Committee()
	if err != nil {
		return nil, err
	}

	book, err := gen.AddressBook()
	if err != nil {
		return nil, err
	}

	key, err := nodeKey(cfg)
	if err != nil {
		return nil, err
	}

	self, err := peer.IDFromPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("deriving node identity: %w", err)
	}

	if !cmt.IsMember(self) {
		return nil, fmt.Errorf("node identity %s is not a committee member", self)
	}

	logger.Info("🕸️ initialising authority node...",
		"name", cfg.Global.Name,
		"id", self,
		"basepath", cfg.Global.BasePath,
		"committee_size", cmt.Size(),
	)

	stateLvl, err := packageLvl(cfg.Log.StateLvl, globalLvl)
	if err != nil {
		return nil, err
	}

	stateSrvc, err := state.NewService(&state.Config{
		BasePath: cfg.Global.BasePath,
		InMemory: cfg.State.InMemory,
		LogLvl:   stateLvl,
	})
	if err != nil {
		return nil, fmt.Errorf("creating state service: %w", err)
	}

	networkLvl, err := packageLvl(cfg.Log.NetworkLvl, globalLvl)
	if err != nil {
		_ = stateSrvc.Stop()
		return nil, err
	}

	netSrvc, err := network.NewService(&network.Config{
		LogLvl:      networkLvl,
		Port:        cfg.Network.Port,
		NodeKey:     key,
		AddressBook: book,
		Provider:    stateSrvc.Transaction,
	})
	if err != nil {
		_ = stateSrvc.Stop()
		return nil, fmt.Errorf("creating network service: %w", err)
	}

	syncSrvc := syncer.NewService(self, cmt, stateSrvc.Transaction)

	tracker := availability.NewTracker(cmt, availability.Config{
		BaseDelay: time.Duration(cfg.Gossip.BaseDelay) * time.Second,
		MaxDelay:  time.Duration(cfg.Gossip.MaxDelay) * time.Second,
	})

	gossipLvl, err := packageLvl(cfg.Log.GossipLvl, globalLvl)
	if err != nil {
		_ = netSrvc.Stop()
		_ = stateSrvc.Stop()
		return nil, err
	}

	gossipSrvc, err := gossip.NewService(&gossip.Config{
		LogLvl:           gossipLvl,
		Self:             self,
		Committee:        cmt,
		Clients:          &clientSet{net: netSrvc},
		State:            stateSrvc.Transaction,
		Synchronizer:     syncSrvc,
		Availability:     tracker,
		Degree:           cfg.Gossip.Degree,
		RefreshPeriod:    time.Duration(cfg.Gossip.RefreshPeriod) * time.Second,
		StaggerIncrement: time.Duration(cfg.Gossip.StaggerIncrement) * time.Second,
	})
	if err != nil {
		_ = netSrvc.Stop()
		_ = stateSrvc.Stop()
		return nil, fmt.Errorf("creating gossip service: %w", err)
	}

	registry := services.NewRegistry()
	registry.RegisterService(stateSrvc)
	registry.RegisterService(netSrvc)
	registry.RegisterService(gossipSrvc)

	if cfg.Global.PublishMetrics {
		address := fmt.Sprintf(":%d", cfg.Global.MetricsPort)
		registry.RegisterService(newMetricsServer(address))
	}

	return &Node{
		Name:     cfg.Global.Name,
		Services: registry,
		started:  make(chan struct{}),
	}, nil
}

// Start starts all node services and blocks until Stop is called or an
// interrupt signal arrives
func (n *Node) Start() error {
	logger.Info("🕸️ starting node services...")
	n.Services.StartAll()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		logger.Info("signal interrupt, shutting down...")
		n.Stop()
		os.Exit(130)
	}()

	n.wg.Add(1)
	close(n.started)
	n.wg.Wait()
	return nil
}

// Started is closed once all services have been started
func (n *Node) Started() <-chan struct{} {
	return n.started
}

// Stop stops all node services in reverse start order
func (n *Node) Stop() {
	n.Services.StopAll()
	n.wg.Done()
}

// nodeKey resolves the network identity from an explicit key file, a
// deterministic test seed or the key persisted under the base path
func nodeKey(cfg *config.Config) (crypto.PrivKey, error) {
	if cfg.Network.KeyFile != "" {
		key, err := network.LoadKeyFile(cfg.Network.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading node key %s: %w", cfg.Network.KeyFile, err)
		}
		return key, nil
	}
	return network.NodeKey(cfg.Global.BasePath, cfg.Network.RandSeed)
}

// clientSet adapts the network service to the gossip client contract
type clientSet struct {
	net *network.Service
}

func (cs *clientSet) Client(id peer.ID) (gossip.Client, error) {
	c, err := cs.net.Client(id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// setupLogger installs the root handler at the configured global level
func setupLogger(cfg *config.Config) (log.Lvl, error) {
	lvl, err := log.LvlFromString(cfg.Global.LogLvl)
	if err != nil {
		return 0, fmt.Errorf("parsing global log level: %w", err)
	}

	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	h = log.CallerFileHandler(h)
	log.Root().SetHandler(log.LvlFilterHandler(lvl, h))
	return lvl, nil
}

// packageLvl resolves a per-package level override, falling back to the
// global level when unset
func packageLvl(override string, global log.Lvl) (log.Lvl, error) {
	if override == "" {
		return global, nil
	}

	lvl, err := log.LvlFromString(override)
	if err != nil {
		return 0, fmt.Errorf("parsing package log level: %w", err)
	}
	return lvl, nil
}
