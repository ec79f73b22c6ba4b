package dian

import (
	"maps"

	"github.com/shopspring/decimal"
)

// Registry resolves endpoints and regulatory constants. It is built once from
// injected configuration and only read afterwards, so it is safe for
// concurrent use without locking.
type Registry struct {
	endpoints map[Environment]Endpoints
	policy    ConnectionPolicy
	catalog   RegulatoryCatalog
}

func NewRegistry(endpoints map[Environment]Endpoints, policy ConnectionPolicy, catalog RegulatoryCatalog) (*Registry, error) {
	if len(endpoints) == 0 {
		return nil, Configurationf("no endpoints configured")
	}
	for env, e := range endpoints {
		if !env.Valid() {
			return nil, Configurationf("endpoint table contains unknown environment %d", int(env))
		}
		if err := e.validate(env); err != nil {
			return nil, err
		}
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if catalog.documentTypes == nil {
		return nil, Configurationf("regulatory catalog is empty")
	}

	logger.WithField("environments", len(endpoints)).Debug("registry configured")

	return &Registry{
		endpoints: maps.Clone(endpoints),
		policy:    policy,
		catalog:   catalog,
	}, nil
}

func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultEndpoints(), DefaultConnectionPolicy(), DefaultCatalog())
	if err != nil {
		panic(err)
	}
	return r
}

// WithConnectionPolicy returns a registry sharing the endpoint table and
// catalog but using policy p.
func (r *Registry) WithConnectionPolicy(p ConnectionPolicy) (*Registry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Registry{endpoints: r.endpoints, policy: p, catalog: r.catalog}, nil
}

func (r *Registry) ResolveEndpoint(env Environment, kind ServiceKind) (string, error) {
	e, ok := r.endpoints[env]
	if !ok {
		return "", Configurationf("unknown environment %d", int(env))
	}
	u, ok := e.url(kind)
	if !ok {
		return "", Configurationf("unknown service kind %d", int(kind))
	}
	return u, nil
}

// ConnectionPolicy returns a copy of the configured policy.
func (r *Registry) ConnectionPolicy() ConnectionPolicy {
	return r.policy
}

func (r *Registry) IsValidTaxRate(rate decimal.Decimal) bool {
	return r.catalog.IsValidTaxRate(rate)
}

func (r *Registry) Catalog() RegulatoryCatalog {
	return r.catalog
}
