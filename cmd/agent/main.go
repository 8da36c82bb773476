package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/adjust481/safe-agent-v4/internal/config"
	"github.com/adjust481/safe-agent-v4/internal/dotenv"
	"github.com/adjust481/safe-agent-v4/internal/jsonl"
	"github.com/adjust481/safe-agent-v4/internal/loop"
	"github.com/adjust481/safe-agent-v4/internal/risk"
	"github.com/adjust481/safe-agent-v4/internal/signalfeed"
	"github.com/adjust481/safe-agent-v4/internal/state"
	"github.com/adjust481/safe-agent-v4/internal/statusapi"
	"github.com/adjust481/safe-agent-v4/internal/trader"
	"github.com/adjust481/safe-agent-v4/internal/vault"
)

type args struct {
	deploymentFile string
	agentsFile     string
	stateFile      string
	journalFile    string
	signalsFile    string
	signalWs       string
	rpcURL         string
	apiAddr        string
	preset         string
	defaultAmount  string
	privateKeyHex  string

	interval        time.Duration
	dryRun          bool
	requestApproval bool
	stopAfter       uint64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	parsed, err := parseArgs()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	deployment, err := config.LoadDeployment(parsed.deploymentFile)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	rpcURL := parsed.rpcURL
	if rpcURL == "" {
		rpcURL = deployment.RPCURL
	}
	if rpcURL == "" {
		log.Fatalf("[fatal] no RPC url: set -rpc, RPC_URL, or rpcUrl in %s", parsed.deploymentFile)
	}

	key, err := parsePrivateKey(parsed.privateKeyHex)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	limits, err := risk.LimitsForPreset(parsed.preset)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	var defaultAmount *big.Int
	if parsed.defaultAmount != "" {
		defaultAmount, err = vault.ParseUnits(parsed.defaultAmount)
		if err != nil {
			log.Fatalf("[fatal] default trade amount: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Printf("Shutting down...")
		cancel()
	}()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		log.Fatalf("[fatal] dial %s: %v", rpcURL, err)
	}
	defer client.Close()

	agent := deployment.AgentAddress()
	user := deployment.UserAddress()

	exec, err := trader.New(client, key, agent, trader.Config{
		ChainID:         big.NewInt(deployment.ChainID),
		Vault:           deployment.VaultAddress(),
		User:            user,
		RequestApproval: parsed.requestApproval,
	})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	binding := vault.NewBinding(client, deployment.VaultAddress())
	provider := vault.NewProvider(binding, headerSource{client}, user, agent)

	var signals signalfeed.Source = signalfeed.FileSource{Path: parsed.signalsFile}
	if parsed.signalWs != "" {
		log.Printf("[info] signal feed: %s", parsed.signalWs)
		signals = signalfeed.StartFeed(ctx, parsed.signalWs, signalfeed.Options{})
	}

	store := state.NewStore(parsed.stateFile)
	journal, err := jsonl.Open(parsed.journalFile)
	if err != nil {
		log.Fatalf("[fatal] open journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			log.Printf("[warn] journal close: %v", err)
		}
	}()

	if parsed.apiAddr != "" {
		statusapi.New(parsed.apiAddr, store).Start(ctx)
	}

	log.Printf("Vault: %s", deployment.VaultAddress().Hex())
	log.Printf("Agent: %s", agent.Hex())
	log.Printf("User: %s", user.Hex())
	log.Printf("Preset: %s", presetName(parsed.preset))
	log.Printf("Dry-run: %v", parsed.dryRun)

	driver := loop.New(loop.Config{
		Interval:        parsed.interval,
		DryRun:          parsed.dryRun,
		StopAfterTrades: parsed.stopAfter,
		DefaultAmount:   defaultAmount,
		Agent:           agent,
		User:            user,
	}, provider, signals, risk.NewGuard(limits), exec, store, journal,
		config.AgentsLoader{Path: parsed.agentsFile, Agent: agent})

	if err := driver.Run(ctx); err != nil {
		log.Fatalf("[fatal] %v", err)
	}
}

// headerSource adapts ethclient to the snapshot provider's block reader.
type headerSource struct {
	c *ethclient.Client
}

func (h headerSource) LatestBlock(ctx context.Context) (uint64, uint64, error) {
	header, err := h.c.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	return header.Number.Uint64(), header.Time, nil
}

func parseArgs() (args, error) {
	var a args
	flag.StringVar(&a.deploymentFile, "deployment", "", "deployment file (env DEPLOYMENT_FILE)")
	flag.StringVar(&a.agentsFile, "agents", "", "agents config file (env AGENTS_FILE)")
	flag.StringVar(&a.stateFile, "state", "", "status document path (env STATE_FILE)")
	flag.StringVar(&a.journalFile, "journal", "", "decision journal path, JSONL (env DECISIONS_FILE)")
	flag.StringVar(&a.signalsFile, "signals", "", "signals file path (env SIGNALS_FILE)")
	flag.StringVar(&a.signalWs, "signal-ws", "", "websocket signal feed url (env SIGNAL_WS_URL)")
	flag.StringVar(&a.rpcURL, "rpc", "", "rpc url, overrides deployment (env RPC_URL)")
	flag.StringVar(&a.apiAddr, "api", "", "status api listen address, empty disables (env STATUS_API_ADDR)")
	flag.StringVar(&a.preset, "preset", "", "risk preset: default, conservative, aggressive (env RISK_PRESET)")
	flag.StringVar(&a.defaultAmount, "default-amount", "", "default trade size in tokens (env DEFAULT_TRADE_AMOUNT)")
	flag.DurationVar(&a.interval, "interval", 0, "poll interval (env POLL_INTERVAL, seconds)")
	dryRun := flag.Bool("dry-run", true, "simulate fills instead of sending transactions (env DRY_RUN)")
	requestApproval := flag.Bool("request-approval", false, "request owner approval instead of executing (env REQUEST_APPROVAL)")
	stopAfter := flag.Uint64("stop-after", 0, "stop after N trades, 0 = run forever (env STOP_AFTER_N_TRADES)")
	flag.Parse()

	a.dryRun = *dryRun
	a.requestApproval = *requestApproval
	a.stopAfter = *stopAfter

	a.deploymentFile = firstNonEmpty(a.deploymentFile, os.Getenv("DEPLOYMENT_FILE"), "./deployments/localhost.json")
	a.agentsFile = firstNonEmpty(a.agentsFile, os.Getenv("AGENTS_FILE"), "./config/agents.json")
	a.stateFile = firstNonEmpty(a.stateFile, os.Getenv("STATE_FILE"), "./out/state.json")
	a.journalFile = firstNonEmpty(a.journalFile, os.Getenv("DECISIONS_FILE"), "./out/decisions.jsonl")
	a.signalsFile = firstNonEmpty(a.signalsFile, os.Getenv("SIGNALS_FILE"), "./signals.json")
	a.signalWs = firstNonEmpty(a.signalWs, os.Getenv("SIGNAL_WS_URL"))
	a.rpcURL = firstNonEmpty(a.rpcURL, os.Getenv("RPC_URL"))
	a.apiAddr = firstNonEmpty(a.apiAddr, os.Getenv("STATUS_API_ADDR"))
	a.preset = firstNonEmpty(a.preset, os.Getenv("RISK_PRESET"))
	a.defaultAmount = firstNonEmpty(a.defaultAmount, os.Getenv("DEFAULT_TRADE_AMOUNT"))
	a.privateKeyHex = firstNonEmpty(os.Getenv("AGENT_PRIVATE_KEY"), os.Getenv("PRIVATE_KEY"))

	if a.interval <= 0 {
		if env := strings.TrimSpace(os.Getenv("POLL_INTERVAL")); env != "" {
			secs, err := strconv.ParseFloat(env, 64)
			if err != nil || secs <= 0 {
				return a, fmt.Errorf("invalid POLL_INTERVAL %q", env)
			}
			a.interval = time.Duration(secs * float64(time.Second))
		} else {
			a.interval = 5 * time.Second
		}
	}

	if env := strings.TrimSpace(os.Getenv("DRY_RUN")); env != "" && !flagWasSet("dry-run") {
		v, err := strconv.ParseBool(env)
		if err != nil {
			return a, fmt.Errorf("invalid DRY_RUN %q", env)
		}
		a.dryRun = v
	}
	if env := strings.TrimSpace(os.Getenv("REQUEST_APPROVAL")); env != "" && !flagWasSet("request-approval") {
		v, err := strconv.ParseBool(env)
		if err != nil {
			return a, fmt.Errorf("invalid REQUEST_APPROVAL %q", env)
		}
		a.requestApproval = v
	}
	if env := strings.TrimSpace(os.Getenv("STOP_AFTER_N_TRADES")); env != "" && !flagWasSet("stop-after") {
		v, err := strconv.ParseUint(env, 10, 64)
		if err != nil {
			return a, fmt.Errorf("invalid STOP_AFTER_N_TRADES %q", env)
		}
		a.stopAfter = v
	}

	if a.privateKeyHex == "" {
		return a, fmt.Errorf("AGENT_PRIVATE_KEY not set")
	}
	return a, nil
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimSpace(strings.TrimPrefix(hexKey, "0x"))
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid agent private key: %w", err)
	}
	return key, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func presetName(p string) string {
	if strings.TrimSpace(p) == "" {
		return "default"
	}
	return p
}
