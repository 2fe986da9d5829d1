package authority

import (
	"fmt"
	"sync"

	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/domain/shared"
)

// Registry resolves the gateway for a document family. Service invoice
// gateways are keyed by IBGE city code; every other family has one
// gateway.
type Registry struct {
	mu        sync.RWMutex
	byType    map[fiscal.DocumentType]fiscal.AuthorityGateway
	municipal map[string]fiscal.AuthorityGateway
}

// NewRegistry creates an empty gateway registry
func NewRegistry() *Registry {
	return &Registry{
		byType:    make(map[fiscal.DocumentType]fiscal.AuthorityGateway),
		municipal: make(map[string]fiscal.AuthorityGateway),
	}
}

// Register adds the gateway for its document family
func (r *Registry) Register(gateway fiscal.AuthorityGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[gateway.DocumentType()] = gateway
}

// RegisterMunicipal adds a service-invoice gateway for one municipality
func (r *Registry) RegisterMunicipal(cityCode string, gateway fiscal.AuthorityGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.municipal[cityCode] = gateway
}

// Resolve returns the gateway for a document family. An unknown
// municipality is a configuration error, not an authority outcome.
func (r *Registry) Resolve(docType fiscal.DocumentType, cityCode string) (fiscal.AuthorityGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if docType == fiscal.DocumentTypeNFSE {
		gateway, ok := r.municipal[cityCode]
		if !ok {
			return nil, shared.NewDomainError("CONFIGURATION_ERROR",
				fmt.Sprintf("No service-invoice gateway registered for municipality %s", cityCode))
		}
		return gateway, nil
	}

	gateway, ok := r.byType[docType]
	if !ok {
		return nil, shared.NewDomainError("CONFIGURATION_ERROR",
			fmt.Sprintf("No authority gateway registered for document type %s", docType))
	}
	return gateway, nil
}
