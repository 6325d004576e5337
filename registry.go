package liquidator

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

type (
	// LiquidatorInstance is one deployed partial-liquidator contract, shared
	// by every credit manager that matched the same template.
	LiquidatorInstance struct {
		Name    string
		Address common.Address
		Status  StatusCode

		creditManagers map[common.Address]*CreditManagerProfile
	}

	// RegistryConfig carries per-template address overrides and deployment
	// material from the composition root.
	RegistryConfig struct {
		// Deployer is the CREATE2 factory the chain client deploys through.
		Deployer common.Address
		// Addresses overrides deployment per template logical name.
		Addresses map[string]common.Address
		// Artifacts holds contract init code per template logical name.
		Artifacts map[string][]byte
		// BotList is the expected bot-permission registry address.
		BotList common.Address
	}

	// Registry maps each credit manager to exactly one liquidator instance.
	// Built once at launch, read-only afterwards.
	Registry struct {
		client    ChainClient
		cfg       RegistryConfig
		templates []liquidatorTemplate
		log       Log

		mu        sync.RWMutex
		instances map[string]*LiquidatorInstance
		byManager map[common.Address]*LiquidatorInstance
	}
)

func (i *LiquidatorInstance) addCreditManager(p *CreditManagerProfile) {
	i.creditManagers[p.Address] = p
}

// CreditManagers lists the managers registered into this instance.
func (i *LiquidatorInstance) CreditManagers() []common.Address {
	out := make([]common.Address, 0, len(i.creditManagers))
	for addr := range i.creditManagers {
		out = append(out, addr)
	}
	return out
}

func (i *LiquidatorInstance) HasCreditManager(cm common.Address) bool {
	_, ok := i.creditManagers[cm]
	return ok
}

// sortedCreditManagers orders the owned managers by address so reads and
// corrections are deterministic across launches.
func (i *LiquidatorInstance) sortedCreditManagers() []common.Address {
	out := i.CreditManagers()
	sort.Slice(out, func(a, b int) bool {
		return bytes.Compare(out[a].Bytes(), out[b].Bytes()) < 0
	})
	return out
}

// anyProfile returns one owning profile; router expectations are shared
// across managers of one instance.
func (i *LiquidatorInstance) anyProfile() *CreditManagerProfile {
	for _, p := range i.creditManagers {
		return p
	}
	return nil
}

func NewRegistry(log Log, client ChainClient, cfg RegistryConfig, templates []liquidatorTemplate) *Registry {
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Registry{
		client:    client,
		cfg:       cfg,
		templates: templates,
		log:       log,
		instances: make(map[string]*LiquidatorInstance),
		byManager: make(map[common.Address]*LiquidatorInstance),
	}
}

// Build runs the matcher chain over every profile, deduplicates instances by
// template name, then ensures each distinct instance is deployed and
// configured. Ambiguous matches abort startup; deployment and configuration
// failures are isolated per instance.
func (r *Registry) Build(ctx context.Context, profiles []*CreditManagerProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range profiles {
		var matched *liquidatorTemplate
		for idx := range r.templates {
			t := &r.templates[idx]
			if !t.match(p) {
				continue
			}
			if matched != nil {
				return AmbiguousTemplateError(p.Address, matched.name, t.name)
			}
			matched = t
		}
		if matched == nil {
			r.log.Info().
				Str("creditManager", p.Address.Hex()).
				Str("underlying", p.UnderlyingSymbol).
				Msg("no partial liquidator template matches, full liquidation only")
			continue
		}

		inst, ok := r.instances[matched.name]
		if !ok {
			inst = &LiquidatorInstance{
				Name:           matched.name,
				Status:         StatusHealthy,
				creditManagers: make(map[common.Address]*CreditManagerProfile),
			}
			r.instances[matched.name] = inst
		}
		inst.addCreditManager(p)
		r.byManager[p.Address] = inst
	}

	for _, inst := range r.instances {
		if err := r.ensureDeployed(ctx, inst); err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				return err
			}
			inst.Status = StatusAlert
			r.log.Error().Err(err).Str("template", inst.Name).Msg("liquidator deployment failed")
			continue
		}
		if err := r.configure(ctx, inst); err != nil {
			inst.Status = StatusAlert
			r.log.Error().Err(err).Str("template", inst.Name).Msg("liquidator configuration failed")
			continue
		}
		r.log.Info().
			Str("template", inst.Name).
			Str("address", inst.Address.Hex()).
			Int("creditManagers", len(inst.creditManagers)).
			Msg("partial liquidator ready")
	}
	return nil
}

// ensureDeployed resolves the instance address: configured override first,
// then the deterministic CREATE2 address, deploying only when no code is
// present there. Repeated launches against unchanged chain state converge to
// the same address without double-deploying.
func (r *Registry) ensureDeployed(ctx context.Context, inst *LiquidatorInstance) error {
	if addr, ok := r.cfg.Addresses[inst.Name]; ok {
		deployed, err := r.client.HasCode(ctx, addr)
		if err != nil {
			return errors.Wrap(err, "check configured address")
		}
		if !deployed {
			return errors.Errorf("configured address %s for template %s has no code", addr.Hex(), inst.Name)
		}
		inst.Address = addr
		return nil
	}

	initCode, ok := r.cfg.Artifacts[inst.Name]
	if !ok {
		return &ConfigError{
			CreditManager: inst.anyProfile().Address,
			Detail:        "no address configured and no deployable artifact for template " + inst.Name,
		}
	}

	salt := crypto.Keccak256Hash([]byte(inst.Name))
	predicted := crypto.CreateAddress2(r.cfg.Deployer, salt, crypto.Keccak256(initCode))

	deployed, err := r.client.HasCode(ctx, predicted)
	if err != nil {
		return errors.Wrap(err, "check predicted address")
	}
	if deployed {
		inst.Address = predicted
		return nil
	}

	addr, err := r.client.DeployContract(ctx, initCode, salt)
	if err != nil {
		return errors.Wrapf(err, "deploy template %s", inst.Name)
	}
	inst.Address = addr
	return nil
}

// configure reconciles on-chain state against expectations: router and
// bot-list addresses, and registration of every owned credit manager. The
// membership read makes registration idempotent across relaunches, so a
// manager matched after the original deployment still gets registered. A
// reverted correcting transaction leaves the instance unusable.
func (r *Registry) configure(ctx context.Context, inst *LiquidatorInstance) error {
	routerRead, err := EncodeRouterRead(inst.Address)
	if err != nil {
		return err
	}
	botListRead, err := EncodeBotListRead(inst.Address)
	if err != nil {
		return err
	}
	managers := inst.sortedCreditManagers()
	reads := make([]Call, 0, 2+len(managers))
	reads = append(reads, routerRead, botListRead)
	for _, cm := range managers {
		call, err := EncodeIsCreditManagerAdded(inst.Address, cm)
		if err != nil {
			return err
		}
		reads = append(reads, call)
	}

	results, err := r.client.MulticallRead(ctx, reads)
	if err != nil {
		return errors.Wrap(err, "read liquidator configuration")
	}
	if len(results) != len(reads) {
		return errors.Errorf("expected %d read results, got %d", len(reads), len(results))
	}
	onChainRouter, err := DecodeAddressResult(results[0])
	if err != nil {
		return err
	}
	onChainBotList, err := DecodeAddressResult(results[1])
	if err != nil {
		return err
	}

	profile := inst.anyProfile()
	var corrections []Call
	if onChainRouter != profile.Router {
		call, err := EncodeSetRouter(inst.Address, profile.Router)
		if err != nil {
			return err
		}
		corrections = append(corrections, call)
	}
	if r.cfg.BotList != (common.Address{}) && onChainBotList != r.cfg.BotList {
		call, err := EncodeSetBotList(inst.Address, r.cfg.BotList)
		if err != nil {
			return err
		}
		corrections = append(corrections, call)
	}
	for i, cm := range managers {
		added, err := DecodeBoolResult(results[2+i])
		if err != nil {
			return err
		}
		if added {
			continue
		}
		call, err := EncodeAddCreditManager(inst.Address, cm)
		if err != nil {
			return err
		}
		corrections = append(corrections, call)
	}
	if len(corrections) == 0 {
		return nil
	}

	txHash, err := r.client.SubmitTransaction(ctx, corrections)
	if err != nil {
		return errors.Wrap(err, "submit configuration transaction")
	}
	receipt, err := r.client.WaitForReceipt(ctx, txHash, DefaultReceiptTimeout)
	if err != nil {
		return errors.Wrap(err, "wait for configuration receipt")
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return errors.Errorf("configuration transaction %s reverted", txHash.Hex())
	}
	return nil
}

// Resolve returns the liquidator instance bound to a credit manager, nil if
// none matched or the instance failed deployment or configuration.
func (r *Registry) Resolve(cm common.Address) *LiquidatorInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.byManager[cm]
	if !ok || inst.Status == StatusAlert {
		return nil
	}
	return inst
}

// Instances snapshots all instances for status reporting.
func (r *Registry) Instances() []*LiquidatorInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LiquidatorInstance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	return out
}

// Status aggregates per-instance statuses into the worst one.
func (r *Registry) Status() StatusCode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]StatusCode, 0, len(r.instances))
	for _, inst := range r.instances {
		codes = append(codes, inst.Status)
	}
	return MaxStatusCode(codes...)
}
