// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"fmt"
	"time"
)

// Dataset is one snapshot of the eight procurement tables. A dataset is
// immutable once ingested: analyses read it, nothing mutates it.
type Dataset struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name,omitempty"`

	PurchaseOrders []PurchaseOrder `json:"purchaseOrders"`
	Suppliers      []Supplier      `json:"suppliers"`
	Items          []Item          `json:"items"`
	Deliveries     []Delivery      `json:"deliveries"`
	Invoices       []Invoice       `json:"invoices"`
	Contracts      []Contract      `json:"contracts"`
	Budgets        []Budget        `json:"budgets"`
	RFQs           []RFQ           `json:"rfqs"`

	CreatedAt time.Time `json:"createdAt"`
}

// PurchaseOrder is one purchase-order line.
type PurchaseOrder struct {
	POID         string    `json:"poId"`
	OrderDate    time.Time `json:"orderDate"`
	Department   string    `json:"department,omitempty"`
	SupplierID   string    `json:"supplierId"`
	ItemID       string    `json:"itemId"`
	Quantity     float64   `json:"quantity"`
	UnitPrice    float64   `json:"unitPrice"`
	DeliveryDate time.Time `json:"deliveryDate"`
	Currency     string    `json:"currency,omitempty"`
	BudgetCode   string    `json:"budgetCode,omitempty"`
	Status       string    `json:"status,omitempty"`
}

// LineSpend is quantity * unit price. Negative or NaN inputs propagate;
// validation is the ingest layer's job, not the scorer's.
func (p *PurchaseOrder) LineSpend() float64 {
	return p.Quantity * p.UnitPrice
}

// Supplier is one supplier master record. ESGScore is nil when the source
// table has no ESG column.
type Supplier struct {
	SupplierID     string   `json:"supplierId"`
	SupplierName   string   `json:"supplierName"`
	Country        string   `json:"country,omitempty"`
	Region         string   `json:"region,omitempty"`
	ESGScore       *float64 `json:"esgScore,omitempty"`
	RiskCategory   string   `json:"riskCategory,omitempty"`
	Certifications string   `json:"certifications,omitempty"`
}

// Item is one catalog item.
type Item struct {
	ItemID      string  `json:"itemId"`
	ItemName    string  `json:"itemName"`
	Category    string  `json:"category,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	Recyclable  bool    `json:"recyclable,omitempty"`
	CarbonScore float64 `json:"carbonScore,omitempty"`
}

// Delivery is one delivery event against a purchase order.
// ActualDate is the zero time when the actual-date column is absent.
type Delivery struct {
	DeliveryID   string    `json:"deliveryId"`
	POID         string    `json:"poId"`
	ActualDate   time.Time `json:"actualDate,omitempty"`
	DeliveredQty float64   `json:"deliveredQty,omitempty"`
	DefectFlag   bool      `json:"defectFlag,omitempty"`
	QualityScore float64   `json:"qualityScore,omitempty"`
}

// Invoice is one invoice against a purchase order.
type Invoice struct {
	InvoiceID   string    `json:"invoiceId"`
	POID        string    `json:"poId"`
	InvoiceDate time.Time `json:"invoiceDate"`
	PaymentDate time.Time `json:"paymentDate,omitempty"`
	Amount      float64   `json:"amount"`
	DueDate     time.Time `json:"dueDate,omitempty"`
}

// LatePayment reports whether the invoice was paid after its due date.
func (i *Invoice) LatePayment() bool {
	if i.PaymentDate.IsZero() || i.DueDate.IsZero() {
		return false
	}
	return i.PaymentDate.After(i.DueDate)
}

// Contract compliance statuses.
const (
	ComplianceCompliant    = "Compliant"
	ComplianceUnderReview  = "Under Review"
	ComplianceNonCompliant = "Non-Compliant"
)

// Contract is one supplier contract.
type Contract struct {
	ContractID       string    `json:"contractId"`
	SupplierID       string    `json:"supplierId"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	ContractValue    float64   `json:"contractValue"`
	ComplianceStatus string    `json:"complianceStatus,omitempty"`
}

// Budget is one budget line keyed by budget code.
type Budget struct {
	BudgetCode string  `json:"budgetCode"`
	Department string  `json:"department,omitempty"`
	Category   string  `json:"category,omitempty"`
	Amount     float64 `json:"amount"`
}

// RFQ is one supplier bid on a request for quote.
type RFQ struct {
	RFQID      string  `json:"rfqId"`
	SupplierID string  `json:"supplierId"`
	ItemID     string  `json:"itemId"`
	UnitPrice  float64 `json:"unitPrice"`
	Quantity   float64 `json:"quantity,omitempty"`
	Status     string  `json:"status,omitempty"`
}

// CheckRequired reports rows whose required identifier fields are blank.
// Blank identifiers break joins downstream (a delivery without a PO ID never
// counts toward OTIF), so ingest surfaces them as warnings. Findings never
// reject a dataset; the evaluators skip what they cannot join.
func (d *Dataset) CheckRequired() []string {
	var findings []string

	for i, po := range d.PurchaseOrders {
		if po.POID == "" || po.SupplierID == "" || po.ItemID == "" {
			findings = append(findings, fmt.Sprintf("purchaseOrders[%d]: missing po/supplier/item ID", i))
		}
	}
	for i, s := range d.Suppliers {
		if s.SupplierID == "" {
			findings = append(findings, fmt.Sprintf("suppliers[%d]: missing supplier ID", i))
		}
	}
	for i, del := range d.Deliveries {
		if del.POID == "" {
			findings = append(findings, fmt.Sprintf("deliveries[%d]: missing PO ID", i))
		}
	}
	for i, inv := range d.Invoices {
		if inv.POID == "" {
			findings = append(findings, fmt.Sprintf("invoices[%d]: missing PO ID", i))
		}
	}
	for i, c := range d.Contracts {
		if c.ContractID == "" || c.SupplierID == "" {
			findings = append(findings, fmt.Sprintf("contracts[%d]: missing contract/supplier ID", i))
		}
	}
	for i, b := range d.Budgets {
		if b.BudgetCode == "" {
			findings = append(findings, fmt.Sprintf("budgets[%d]: missing budget code", i))
		}
	}
	for i, r := range d.RFQs {
		if r.RFQID == "" || r.SupplierID == "" || r.ItemID == "" {
			findings = append(findings, fmt.Sprintf("rfqs[%d]: missing rfq/supplier/item ID", i))
		}
	}

	return findings
}

// DatasetSummary is the lightweight row-count view returned by the API.
type DatasetSummary struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId"`
	Name           string    `json:"name,omitempty"`
	PurchaseOrders int       `json:"purchaseOrders"`
	Suppliers      int       `json:"suppliers"`
	Items          int       `json:"items"`
	Deliveries     int       `json:"deliveries"`
	Invoices       int       `json:"invoices"`
	Contracts      int       `json:"contracts"`
	Budgets        int       `json:"budgets"`
	RFQs           int       `json:"rfqs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Summary returns the row counts for a dataset.
func (d *Dataset) Summary() DatasetSummary {
	return DatasetSummary{
		ID:             d.ID,
		TenantID:       d.TenantID,
		Name:           d.Name,
		PurchaseOrders: len(d.PurchaseOrders),
		Suppliers:      len(d.Suppliers),
		Items:          len(d.Items),
		Deliveries:     len(d.Deliveries),
		Invoices:       len(d.Invoices),
		Contracts:      len(d.Contracts),
		Budgets:        len(d.Budgets),
		RFQs:           len(d.RFQs),
		CreatedAt:      d.CreatedAt,
	}
}
