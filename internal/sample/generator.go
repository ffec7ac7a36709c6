// Package sample generates deterministic synthetic procurement datasets for
// demos, seeding, and benchmarks.
package sample

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-procurement/kestrel/internal/domain"
)

// Default table sizes for a generated dataset.
const (
	NumPurchaseOrders = 100
	NumSuppliers      = 20
	NumItems          = 25
	NumDeliveries     = 100
	NumInvoices       = 100
	NumContracts      = 15
	NumBudgets        = 10
	NumRFQs           = 30
)

var supplierNames = []string{
	"TechCorp Solutions", "Global Manufacturing Inc", "Quality Supplies Co",
	"Innovation Systems", "Reliable Partners Ltd", "Advanced Technologies",
	"Premium Components", "Smart Solutions Group", "Elite Suppliers",
	"Future Tech Industries", "Reliable Manufacturing", "Quality Systems",
	"Innovation Partners", "Global Tech Solutions", "Premium Suppliers",
	"Advanced Manufacturing", "Smart Components", "Elite Technologies",
	"Future Systems", "Reliable Tech",
}

var itemNames = []string{
	"Laptop Computer", "Office Chair", "Printer", "Software License", "Desk Lamp",
	"Filing Cabinet", "Coffee Machine", "Projector", "Whiteboard", "Telephone",
	"Scanner", "Monitor", "Keyboard", "Mouse", "Headphones", "Microphone",
	"Webcam", "Tablet", "Smartphone", "Server", "Network Switch", "Router",
	"Backup System", "Security Camera", "Access Control System",
}

var (
	departments  = []string{"IT", "HR", "Finance", "Operations", "Marketing", "Sales", "Legal", "Facilities"}
	poStatuses   = []string{"Open", "In Progress", "Completed", "Cancelled"}
	currencies   = []string{"USD", "EUR", "GBP"}
	countries    = []string{"USA", "Germany", "China", "Japan", "UK", "France", "Canada", "Australia"}
	regions      = []string{"North America", "Europe", "Asia Pacific", "Middle East", "Africa"}
	certs        = []string{"ISO 9001", "ISO 14001", "OHSAS 18001", "ISO 27001"}
	riskBuckets  = []string{"Low", "Medium", "High"}
	categories   = []string{"Electronics", "Office Supplies", "Furniture", "Software", "Services", "Equipment"}
	units        = []string{"Piece", "Box", "Set", "License", "Hour", "Unit"}
	compStatuses = []string{domain.ComplianceCompliant, domain.ComplianceUnderReview, domain.ComplianceNonCompliant}
	rfqStatuses  = []string{"Open", "Closed", "Awarded", "Cancelled"}
)

// Generate builds a synthetic dataset anchored at now. The same seed yields
// the same dataset, which keeps demo assessments stable across runs.
func Generate(tenantID string, seed int64, now time.Time) *domain.Dataset {
	rng := rand.New(rand.NewSource(seed))
	base := now.Add(-365 * 24 * time.Hour)

	ds := &domain.Dataset{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      fmt.Sprintf("sample-%d", seed),
		CreatedAt: now,
	}

	for i := 0; i < NumSuppliers; i++ {
		score := 50 + rng.Float64()*45
		ds.Suppliers = append(ds.Suppliers, domain.Supplier{
			SupplierID:     fmt.Sprintf("SUP-%d", i+1),
			SupplierName:   supplierNames[i%len(supplierNames)],
			Country:        countries[rng.Intn(len(countries))],
			Region:         regions[rng.Intn(len(regions))],
			ESGScore:       &score,
			RiskCategory:   riskBuckets[rng.Intn(len(riskBuckets))],
			Certifications: certs[rng.Intn(len(certs))],
		})
	}

	for i := 0; i < NumItems; i++ {
		ds.Items = append(ds.Items, domain.Item{
			ItemID:      fmt.Sprintf("ITEM-%d", i+1),
			ItemName:    itemNames[i%len(itemNames)],
			Category:    categories[rng.Intn(len(categories))],
			Unit:        units[rng.Intn(len(units))],
			Recyclable:  rng.Intn(2) == 0,
			CarbonScore: 1 + rng.Float64()*9,
		})
	}

	for i := 0; i < NumPurchaseOrders; i++ {
		orderDate := base.Add(time.Duration(rng.Intn(365)) * 24 * time.Hour)
		ds.PurchaseOrders = append(ds.PurchaseOrders, domain.PurchaseOrder{
			POID:         fmt.Sprintf("PO-%04d", i+1),
			OrderDate:    orderDate,
			Department:   departments[rng.Intn(len(departments))],
			SupplierID:   fmt.Sprintf("SUP-%d", rng.Intn(NumSuppliers)+1),
			ItemID:       fmt.Sprintf("ITEM-%d", rng.Intn(NumItems)+1),
			Quantity:     float64(rng.Intn(100) + 1),
			UnitPrice:    round2(10 + rng.Float64()*990),
			DeliveryDate: orderDate.Add(time.Duration(rng.Intn(54)+7) * 24 * time.Hour),
			Currency:     currencies[rng.Intn(len(currencies))],
			BudgetCode:   fmt.Sprintf("BUD-%d", rng.Intn(NumBudgets)+1),
			Status:       poStatuses[rng.Intn(len(poStatuses))],
		})
	}

	for i := 0; i < NumDeliveries; i++ {
		po := &ds.PurchaseOrders[i%len(ds.PurchaseOrders)]
		actual := po.DeliveryDate.Add(time.Duration(rng.Intn(16)-5) * 24 * time.Hour)
		qty := po.Quantity
		if rng.Float64() < 0.1 {
			qty = float64(int(qty * (0.8 + rng.Float64()*0.2)))
		}
		ds.Deliveries = append(ds.Deliveries, domain.Delivery{
			DeliveryID:   fmt.Sprintf("DEL-%04d", i+1),
			POID:         po.POID,
			ActualDate:   actual,
			DeliveredQty: qty,
			DefectFlag:   rng.Float64() < 0.05,
			QualityScore: round2(70 + rng.Float64()*30),
		})
	}

	for i := 0; i < NumInvoices; i++ {
		po := &ds.PurchaseOrders[i%len(ds.PurchaseOrders)]
		invoiceDate := po.OrderDate.Add(time.Duration(rng.Intn(30)+1) * 24 * time.Hour)
		dueDate := invoiceDate.Add(30 * 24 * time.Hour)
		paymentDate := dueDate.Add(time.Duration(rng.Intn(31)-10) * 24 * time.Hour)
		inv := domain.Invoice{
			InvoiceID:   fmt.Sprintf("INV-%04d", i+1),
			POID:        po.POID,
			InvoiceDate: invoiceDate,
			Amount:      round2(po.LineSpend() * (1 + rng.Float64()*0.1)),
			DueDate:     dueDate,
		}
		if paymentDate.Before(now) {
			inv.PaymentDate = paymentDate
		}
		ds.Invoices = append(ds.Invoices, inv)
	}

	for i := 0; i < NumContracts; i++ {
		start := base.Add(time.Duration(rng.Intn(200)) * 24 * time.Hour)
		end := start.Add(time.Duration(rng.Intn(731)+365) * 24 * time.Hour)
		ds.Contracts = append(ds.Contracts, domain.Contract{
			ContractID:       fmt.Sprintf("CON-%03d", i+1),
			SupplierID:       ds.Suppliers[i%len(ds.Suppliers)].SupplierID,
			StartDate:        start,
			EndDate:          end,
			ContractValue:    round2(50000 + rng.Float64()*450000),
			ComplianceStatus: compStatuses[rng.Intn(len(compStatuses))],
		})
	}

	for i := 0; i < NumBudgets; i++ {
		ds.Budgets = append(ds.Budgets, domain.Budget{
			BudgetCode: fmt.Sprintf("BUD-%d", i+1),
			Department: departments[rng.Intn(len(departments))],
			Category:   categories[rng.Intn(len(categories))],
			Amount:     round2(50000 + rng.Float64()*450000),
		})
	}

	for i := 0; i < NumRFQs; i++ {
		ds.RFQs = append(ds.RFQs, domain.RFQ{
			RFQID:      fmt.Sprintf("RFQ-%03d", i+1),
			SupplierID: ds.Suppliers[i%len(ds.Suppliers)].SupplierID,
			ItemID:     ds.Items[i%len(ds.Items)].ItemID,
			UnitPrice:  round2(20 + rng.Float64()*1480),
			Quantity:   float64(rng.Intn(491) + 10),
			Status:     rfqStatuses[rng.Intn(len(rfqStatuses))],
		})
	}

	return ds
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
