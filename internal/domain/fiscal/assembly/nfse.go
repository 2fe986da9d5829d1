package assembly

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/emissor/backend/internal/domain/fiscal"
)

// nfsePayload is the provisional service receipt (RPS) batch envelope sent
// to a municipal webservice. Municipalities later convert the RPS into an
// authorized service invoice.
type nfsePayload struct {
	XMLName   xml.Name     `xml:"EnviarLoteRpsEnvio"`
	LoteRps   nfseLote     `xml:"LoteRps"`
	Signature xmlSignature `xml:"Signature"`
}

type nfseLote struct {
	NumeroLote string    `xml:"NumeroLote"`
	Cnpj       string    `xml:"Cnpj"`
	QtdRps     string    `xml:"QuantidadeRps"`
	ListaRps   []nfseRps `xml:"ListaRps>Rps"`
}

type nfseRps struct {
	InfRps nfseInfRps `xml:"InfRps"`
}

type nfseInfRps struct {
	ID          string       `xml:"Id,attr"`
	Numero      string       `xml:"IdentificacaoRps>Numero"`
	Serie       string       `xml:"IdentificacaoRps>Serie"`
	DataEmissao string       `xml:"DataEmissao"`
	NaturezaOp  string       `xml:"NaturezaOperacao"`
	Servico     nfseServico  `xml:"Servico"`
	Prestador   nfseParty    `xml:"Prestador"`
	Tomador     *nfseTomador `xml:"Tomador,omitempty"`
}

type nfseServico struct {
	ItemListaServico string      `xml:"ItemListaServico"`
	CodigoMunicipio  string      `xml:"CodigoMunicipio"`
	Discriminacao    string      `xml:"Discriminacao"`
	Valores          nfseValores `xml:"Valores"`
	Itens            []nfseItem  `xml:"ListaItens>Item"`
}

type nfseItem struct {
	Descricao     string `xml:"Descricao"`
	Quantidade    string `xml:"Quantidade"`
	ValorUnitario string `xml:"ValorUnitario"`
	ValorTotal    string `xml:"ValorTotal"`
}

type nfseValores struct {
	ValorServicos string `xml:"ValorServicos"`
}

type nfseParty struct {
	Cnpj string `xml:"Cnpj"`
}

type nfseTomador struct {
	Cnpj        string `xml:"IdentificacaoTomador>CpfCnpj>Cnpj,omitempty"`
	Cpf         string `xml:"IdentificacaoTomador>CpfCnpj>Cpf,omitempty"`
	RazaoSocial string `xml:"RazaoSocial"`
}

// nfseAssembler serializes municipal service invoices
type nfseAssembler struct {
	signer Signer
}

// NewNFSeAssembler creates the service invoice assembler
func NewNFSeAssembler(signer Signer) Assembler {
	return &nfseAssembler{signer: signer}
}

func (a *nfseAssembler) DocumentType() fiscal.DocumentType {
	return fiscal.DocumentTypeNFSE
}

func (a *nfseAssembler) Assemble(doc *fiscal.FiscalDocument, accessKey string) (*fiscal.SerializedDocument, error) {
	if doc.DocumentType != fiscal.DocumentTypeNFSE {
		return nil, NewIncompleteDocument("document_type")
	}
	if err := checkDocument(doc); err != nil {
		return nil, err
	}
	if !fiscal.VerifyKey(accessKey) {
		return nil, NewIncompleteDocument("access_key")
	}
	// Municipal routing and tax fields are mandatory for service invoices
	if doc.MunicipalServiceCode == "" {
		return nil, NewIncompleteDocument("municipal_service_code")
	}
	if doc.ServiceCityCode == "" {
		return nil, NewIncompleteDocument("service_city_code")
	}
	rpsNumber := doc.RPSNumber
	if rpsNumber == 0 {
		rpsNumber = doc.Number
	}

	infID := fmt.Sprintf("rps%d", rpsNumber)
	items := make([]nfseItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		items = append(items, nfseItem{
			Descricao:     trimmed(it.Description),
			Quantidade:    quantity(it.Quantity),
			ValorUnitario: currency(it.UnitPrice),
			ValorTotal:    currency(it.Total),
		})
	}

	payload := nfsePayload{
		LoteRps: nfseLote{
			NumeroLote: fmt.Sprintf("%d", rpsNumber),
			Cnpj:       doc.Issuer.TaxID,
			QtdRps:     "1",
			ListaRps: []nfseRps{{
				InfRps: nfseInfRps{
					ID:          infID,
					Numero:      fmt.Sprintf("%d", rpsNumber),
					Serie:       fmt.Sprintf("%d", doc.Series),
					DataEmissao: doc.IssueDate.Format(time.RFC3339),
					NaturezaOp:  trimmed(doc.OperationNature),
					Servico: nfseServico{
						ItemListaServico: doc.MunicipalServiceCode,
						CodigoMunicipio:  doc.ServiceCityCode,
						Discriminacao:    trimmed(doc.Items[0].Description),
						Valores:          nfseValores{ValorServicos: currency(doc.TotalValue.Amount)},
						Itens:            items,
					},
					Prestador: nfseParty{Cnpj: doc.Issuer.TaxID},
					Tomador:   buildTomador(doc.Counterparty),
				},
			}},
		},
	}

	sig, err := signContent(a.signer, infID, &payload.LoteRps)
	if err != nil {
		return nil, err
	}
	payload.Signature = sig

	return serialize(&payload, fiscal.DocumentTypeNFSE, accessKey)
}

func buildTomador(p fiscal.Party) *nfseTomador {
	if p.TaxID == "" && p.LegalName == "" {
		return nil
	}
	t := &nfseTomador{RazaoSocial: trimmed(p.LegalName)}
	if len(p.TaxID) == 11 {
		t.Cpf = p.TaxID
	} else {
		t.Cnpj = p.TaxID
	}
	return t
}
