package assembly

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/emissor/backend/internal/domain/fiscal"
)

const nfeNamespace = "http://www.portalfiscal.inf.br/nfe"

// nfePayload is the emission payload for product and consumer invoices.
// NFe and NFCe share the schema; they differ in the model code and in the
// counterparty and payment blocks.
type nfePayload struct {
	XMLName   xml.Name     `xml:"NFe"`
	Xmlns     string       `xml:"xmlns,attr"`
	InfNFe    nfeInf       `xml:"infNFe"`
	Signature xmlSignature `xml:"Signature"`
}

type xmlSignature struct {
	Value string `xml:",chardata"`
}

type nfeInf struct {
	ID     string   `xml:"Id,attr"`
	Versao string   `xml:"versao,attr"`
	Ide    nfeIde   `xml:"ide"`
	Emit   nfeEmit  `xml:"emit"`
	Dest   *nfeDest `xml:"dest,omitempty"`
	Det    []nfeDet `xml:"det"`
	Total  nfeTotal `xml:"total"`
	Pag    *nfePag  `xml:"pag,omitempty"`
}

type nfeIde struct {
	CUF    string `xml:"cUF"`
	CNF    string `xml:"cNF"`
	NatOp  string `xml:"natOp"`
	Mod    string `xml:"mod"`
	Serie  string `xml:"serie"`
	NNF    string `xml:"nNF"`
	DhEmi  string `xml:"dhEmi"`
	TpEmis string `xml:"tpEmis"`
	CDV    string `xml:"cDV"`
}

type nfeEmit struct {
	CNPJ      string      `xml:"CNPJ"`
	XNome     string      `xml:"xNome"`
	EnderEmit *nfeAddress `xml:"enderEmit,omitempty"`
}

type nfeDest struct {
	CNPJ  string `xml:"CNPJ,omitempty"`
	CPF   string `xml:"CPF,omitempty"`
	XNome string `xml:"xNome"`
}

type nfeAddress struct {
	XLgr    string `xml:"xLgr"`
	Nro     string `xml:"nro,omitempty"`
	XBairro string `xml:"xBairro,omitempty"`
	CMun    string `xml:"cMun,omitempty"`
	XMun    string `xml:"xMun"`
	UF      string `xml:"UF"`
	CEP     string `xml:"CEP,omitempty"`
}

type nfeDet struct {
	NItem string  `xml:"nItem,attr"`
	Prod  nfeProd `xml:"prod"`
}

type nfeProd struct {
	CProd  string `xml:"cProd"`
	XProd  string `xml:"xProd"`
	CFOP   string `xml:"CFOP,omitempty"`
	QCom   string `xml:"qCom"`
	VUnCom string `xml:"vUnCom"`
	VProd  string `xml:"vProd"`
}

type nfeTotal struct {
	ICMSTot nfeICMSTot `xml:"ICMSTot"`
}

type nfeICMSTot struct {
	VNF string `xml:"vNF"`
}

type nfePag struct {
	DetPag nfeDetPag `xml:"detPag"`
}

type nfeDetPag struct {
	TPag string `xml:"tPag"`
	VPag string `xml:"vPag"`
}

// nfeAssembler serializes NFe and NFCe documents
type nfeAssembler struct {
	docType fiscal.DocumentType
	signer  Signer
}

// NewNFeAssembler creates the product invoice assembler
func NewNFeAssembler(signer Signer) Assembler {
	return &nfeAssembler{docType: fiscal.DocumentTypeNFE, signer: signer}
}

// NewNFCeAssembler creates the consumer invoice assembler
func NewNFCeAssembler(signer Signer) Assembler {
	return &nfeAssembler{docType: fiscal.DocumentTypeNFCE, signer: signer}
}

func (a *nfeAssembler) DocumentType() fiscal.DocumentType {
	return a.docType
}

func (a *nfeAssembler) Assemble(doc *fiscal.FiscalDocument, accessKey string) (*fiscal.SerializedDocument, error) {
	if doc.DocumentType != a.docType {
		return nil, NewIncompleteDocument("document_type")
	}
	if err := checkDocument(doc); err != nil {
		return nil, err
	}
	if !fiscal.VerifyKey(accessKey) {
		return nil, NewIncompleteDocument("access_key")
	}
	// NFe requires an identified counterparty; NFCe may omit it for
	// anonymous consumer sales
	if a.docType == fiscal.DocumentTypeNFE && doc.Counterparty.TaxID == "" {
		return nil, NewIncompleteDocument("counterparty.tax_id")
	}

	infID := "NFe" + accessKey
	payload := nfePayload{
		Xmlns: nfeNamespace,
		InfNFe: nfeInf{
			ID:     infID,
			Versao: "4.00",
			Ide: nfeIde{
				CUF:    accessKey[0:2],
				CNF:    accessKey[35:43],
				NatOp:  trimmed(doc.OperationNature),
				Mod:    doc.DocumentType.ModelCode(),
				Serie:  fmt.Sprintf("%d", doc.Series),
				NNF:    fmt.Sprintf("%d", doc.Number),
				DhEmi:  doc.IssueDate.Format(time.RFC3339),
				TpEmis: accessKey[34:35],
				CDV:    accessKey[43:44],
			},
			Emit:  buildEmit(doc),
			Dest:  buildDest(doc),
			Total: nfeTotal{ICMSTot: nfeICMSTot{VNF: currency(doc.TotalValue.Amount)}},
		},
	}
	for _, it := range doc.Items {
		payload.InfNFe.Det = append(payload.InfNFe.Det, nfeDet{
			NItem: fmt.Sprintf("%d", it.Position),
			Prod: nfeProd{
				CProd:  it.ItemCode,
				XProd:  trimmed(it.Description),
				CFOP:   it.CFOP,
				QCom:   quantity(it.Quantity),
				VUnCom: currency(it.UnitPrice),
				VProd:  currency(it.Total),
			},
		})
	}
	// NFCe always carries a payment block; a single cash detail stands in
	// until payment capture is modeled
	if a.docType == fiscal.DocumentTypeNFCE {
		payload.InfNFe.Pag = &nfePag{DetPag: nfeDetPag{TPag: "01", VPag: currency(doc.TotalValue.Amount)}}
	}

	sig, err := signContent(a.signer, infID, &payload.InfNFe)
	if err != nil {
		return nil, err
	}
	payload.Signature = sig

	return serialize(&payload, a.docType, accessKey)
}

func buildEmit(doc *fiscal.FiscalDocument) nfeEmit {
	emit := nfeEmit{
		CNPJ:  doc.Issuer.TaxID,
		XNome: trimmed(doc.Issuer.LegalName),
	}
	if !doc.Issuer.Address.IsZero() {
		emit.EnderEmit = &nfeAddress{
			XLgr:    trimmed(doc.Issuer.Address.Street),
			Nro:     doc.Issuer.Address.Number,
			XBairro: trimmed(doc.Issuer.Address.District),
			CMun:    doc.Issuer.Address.CityCode,
			XMun:    trimmed(doc.Issuer.Address.City),
			UF:      doc.Issuer.Address.State,
			CEP:     doc.Issuer.Address.ZipCode,
		}
	}
	return emit
}

func buildDest(doc *fiscal.FiscalDocument) *nfeDest {
	if doc.Counterparty.TaxID == "" && doc.Counterparty.LegalName == "" {
		return nil
	}
	dest := &nfeDest{XNome: trimmed(doc.Counterparty.LegalName)}
	if len(doc.Counterparty.TaxID) == 11 {
		dest.CPF = doc.Counterparty.TaxID
	} else {
		dest.CNPJ = doc.Counterparty.TaxID
	}
	return dest
}

// signContent runs the signature seam over the marshaled signed portion
func signContent(signer Signer, referenceID string, content any) (xmlSignature, error) {
	body, err := xml.Marshal(content)
	if err != nil {
		return xmlSignature{}, fmt.Errorf("marshaling signed content: %w", err)
	}
	sig, err := signer.Sign(referenceID, body)
	if err != nil {
		return xmlSignature{}, fmt.Errorf("signing content: %w", err)
	}
	return xmlSignature{Value: sig}, nil
}

// serialize marshals the full payload and wraps it as a SerializedDocument
func serialize(payload any, docType fiscal.DocumentType, accessKey string) (*fiscal.SerializedDocument, error) {
	body, err := xml.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", docType, err)
	}
	return &fiscal.SerializedDocument{
		DocumentType: docType,
		AccessKey:    accessKey,
		ContentType:  ContentTypeXML,
		Payload:      append([]byte(xml.Header), body...),
	}, nil
}
