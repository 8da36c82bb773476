package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Deployment mirrors deployments/localhost.json: where the contracts live and
// which identities act.
type Deployment struct {
	RPCURL    string `json:"rpcUrl"`
	ChainID   int64  `json:"chainId"`
	Addresses struct {
		Vault  string `json:"vault"`
		Token0 string `json:"token0"`
		Token1 string `json:"token1"`
	} `json:"addresses"`
	Actors struct {
		User  string `json:"user"`
		Agent string `json:"agent"`
	} `json:"actors"`
}

func (d *Deployment) VaultAddress() common.Address { return common.HexToAddress(d.Addresses.Vault) }
func (d *Deployment) UserAddress() common.Address  { return common.HexToAddress(d.Actors.User) }
func (d *Deployment) AgentAddress() common.Address { return common.HexToAddress(d.Actors.Agent) }

// LoadDeployment reads the deployment file. Missing deployment is fatal at
// startup: nothing can run without contract addresses.
func LoadDeployment(path string) (*Deployment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load deployment %s: %w", path, err)
	}
	var d Deployment
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse deployment %s: %w", path, err)
	}
	if d.Addresses.Vault == "" {
		return nil, fmt.Errorf("deployment %s: vault address missing", path)
	}
	return &d, nil
}

// AgentEntry is one agent's record in the agents config file.
type AgentEntry struct {
	Address        string         `json:"address"`
	ENSName        string         `json:"ensName"`
	Strategy       string         `json:"strategy"`
	Enabled        *bool          `json:"enabled,omitempty"`
	StrategyParams map[string]any `json:"strategyParams,omitempty"`
	Config         struct {
		// SlippageTolerance is a percentage (0.5 = 0.5% = 50 bps).
		SlippageTolerance float64 `json:"slippageTolerance"`
		// Cap is the per-trade limit in whole tokens, as a decimal string.
		Cap string `json:"cap"`
	} `json:"config"`
}

func (e AgentEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

func (e AgentEntry) SlippageBps() int64 {
	bps := int64(e.Config.SlippageTolerance * 100)
	if bps < 0 {
		return 0
	}
	return bps
}

type agentsFile struct {
	Agents []AgentEntry `json:"agents"`
}

// AgentsLoader re-reads the agents config every iteration so operators can
// flip enabled/cap without restarting the process. Missing file or missing
// agent degrade to a default entry with a warning.
type AgentsLoader struct {
	Path  string
	Agent common.Address
}

func (l AgentsLoader) Load() AgentEntry {
	entries, err := l.readAll()
	if err != nil {
		log.Printf("[warn] agents config: %v", err)
		return l.defaultEntry()
	}

	want := strings.ToLower(l.Agent.Hex())
	for _, e := range entries {
		if strings.ToLower(e.Address) == want {
			return e
		}
	}
	log.Printf("[warn] agent %s not found in %s, using defaults", l.Agent.Hex(), l.Path)
	return l.defaultEntry()
}

func (l AgentsLoader) readAll() ([]AgentEntry, error) {
	b, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.Path, err)
	}
	var f agentsFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.Path, err)
	}
	return f.Agents, nil
}

func (l AgentsLoader) defaultEntry() AgentEntry {
	e := AgentEntry{
		Address:  l.Agent.Hex(),
		ENSName:  "agent.safe.eth",
		Strategy: "default",
	}
	e.Config.SlippageTolerance = 0.5
	e.Config.Cap = "100"
	return e
}
