package assembly

import (
	"fmt"
	"time"

	"encoding/xml"

	"github.com/emissor/backend/internal/domain/fiscal"
)

const cteNamespace = "http://www.portalfiscal.inf.br/cte"

// ctePayload is the emission payload for transport documents
type ctePayload struct {
	XMLName   xml.Name     `xml:"CTe"`
	Xmlns     string       `xml:"xmlns,attr"`
	InfCte    cteInf       `xml:"infCte"`
	Signature xmlSignature `xml:"Signature"`
}

type cteInf struct {
	ID     string    `xml:"Id,attr"`
	Versao string    `xml:"versao,attr"`
	Ide    cteIde    `xml:"ide"`
	Emit   cteParty  `xml:"emit"`
	Rem    cteParty  `xml:"rem"`
	Transp cteTransp `xml:"transp"`
	Det    []cteDet  `xml:"det"`
	VPrest cteVPrest `xml:"vPrest"`
}

type cteIde struct {
	CUF    string `xml:"cUF"`
	CCT    string `xml:"cCT"`
	NatOp  string `xml:"natOp"`
	Mod    string `xml:"mod"`
	Serie  string `xml:"serie"`
	NCT    string `xml:"nCT"`
	DhEmi  string `xml:"dhEmi"`
	TpEmis string `xml:"tpEmis"`
	CDV    string `xml:"cDV"`
}

type cteParty struct {
	CNPJ  string `xml:"CNPJ,omitempty"`
	CPF   string `xml:"CPF,omitempty"`
	XNome string `xml:"xNome"`
	UF    string `xml:"UF,omitempty"`
}

type cteTransp struct {
	CNPJ  string `xml:"CNPJ,omitempty"`
	XNome string `xml:"xNome"`
}

type cteDet struct {
	NItem  string `xml:"nItem,attr"`
	XDesc  string `xml:"xDescServ"`
	QCarga string `xml:"qCarga"`
	VServ  string `xml:"vServ"`
}

type cteVPrest struct {
	VTPrest string `xml:"vTPrest"`
}

// cteAssembler serializes transport documents
type cteAssembler struct {
	signer Signer
}

// NewCTeAssembler creates the transport document assembler
func NewCTeAssembler(signer Signer) Assembler {
	return &cteAssembler{signer: signer}
}

func (a *cteAssembler) DocumentType() fiscal.DocumentType {
	return fiscal.DocumentTypeCTE
}

func (a *cteAssembler) Assemble(doc *fiscal.FiscalDocument, accessKey string) (*fiscal.SerializedDocument, error) {
	if doc.DocumentType != fiscal.DocumentTypeCTE {
		return nil, NewIncompleteDocument("document_type")
	}
	if err := checkDocument(doc); err != nil {
		return nil, err
	}
	if !fiscal.VerifyKey(accessKey) {
		return nil, NewIncompleteDocument("access_key")
	}
	// Transport documents always identify the carrier
	if doc.CarrierName == "" {
		return nil, NewIncompleteDocument("carrier_name")
	}
	if doc.Counterparty.TaxID == "" {
		return nil, NewIncompleteDocument("counterparty.tax_id")
	}

	infID := "CTe" + accessKey
	payload := ctePayload{
		Xmlns: cteNamespace,
		InfCte: cteInf{
			ID:     infID,
			Versao: "3.00",
			Ide: cteIde{
				CUF:    accessKey[0:2],
				CCT:    accessKey[35:43],
				NatOp:  trimmed(doc.OperationNature),
				Mod:    doc.DocumentType.ModelCode(),
				Serie:  fmt.Sprintf("%d", doc.Series),
				NCT:    fmt.Sprintf("%d", doc.Number),
				DhEmi:  doc.IssueDate.Format(time.RFC3339),
				TpEmis: accessKey[34:35],
				CDV:    accessKey[43:44],
			},
			Emit: cteParty{
				CNPJ:  doc.Issuer.TaxID,
				XNome: trimmed(doc.Issuer.LegalName),
				UF:    doc.Issuer.StateUF,
			},
			Rem:    buildCteParty(doc.Counterparty),
			Transp: cteTransp{CNPJ: doc.CarrierTaxID, XNome: trimmed(doc.CarrierName)},
			VPrest: cteVPrest{VTPrest: currency(doc.TotalValue.Amount)},
		},
	}
	for _, it := range doc.Items {
		payload.InfCte.Det = append(payload.InfCte.Det, cteDet{
			NItem:  fmt.Sprintf("%d", it.Position),
			XDesc:  trimmed(it.Description),
			QCarga: quantity(it.Quantity),
			VServ:  currency(it.Total),
		})
	}

	sig, err := signContent(a.signer, infID, &payload.InfCte)
	if err != nil {
		return nil, err
	}
	payload.Signature = sig

	return serialize(&payload, fiscal.DocumentTypeCTE, accessKey)
}

func buildCteParty(p fiscal.Party) cteParty {
	party := cteParty{XNome: trimmed(p.LegalName), UF: p.StateUF}
	if len(p.TaxID) == 11 {
		party.CPF = p.TaxID
	} else {
		party.CNPJ = p.TaxID
	}
	return party
}
