// Seed tool for loading synthetic procurement data into Kestrel.
//
// Usage:
//   go run cmd/seed/main.go -url http://localhost:8080 -tenant demo
//
// This tool:
//   1. Generates a deterministic synthetic dataset (or writes it to a file)
//   2. Ingests it via POST /datasets
//   3. Requests an assessment via POST /datasets/{id}/assess
//   4. Prints the resulting risk report summary
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/opensource-procurement/kestrel/internal/domain"
	"github.com/opensource-procurement/kestrel/internal/sample"
)

// IngestResponse mirrors the Kestrel ingest API response.
type IngestResponse struct {
	Dataset  domain.DatasetSummary `json:"dataset"`
	Metadata struct {
		TraceID  string `json:"traceId"`
		IngestMs int64  `json:"ingestMs"`
		Version  string `json:"version"`
	} `json:"metadata"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "demo", "Tenant ID for requests")
	seed := flag.Int64("seed", 42, "Random seed for dataset generation")
	name := flag.String("name", "", "Dataset name (default sample-<seed>)")
	out := flag.String("out", "", "Write the dataset to a JSON file instead of ingesting")
	skipAssess := flag.Bool("skip-assess", false, "Ingest only, do not request an assessment")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              KESTREL SEED - Synthetic Procurement Data        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	ds := sample.Generate(*tenantID, *seed, time.Now().UTC())
	if *name != "" {
		ds.Name = *name
	}
	fmt.Printf("✓ Generated dataset %s (%d POs, %d suppliers, %d deliveries, %d contracts)\n",
		ds.Name, len(ds.PurchaseOrders), len(ds.Suppliers), len(ds.Deliveries), len(ds.Contracts))

	if *out != "" {
		data, err := json.MarshalIndent(ds, "", "  ")
		if err != nil {
			fmt.Printf("ERROR: Failed to marshal dataset: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			fmt.Printf("ERROR: Failed to write %s: %v\n", *out, err)
			os.Exit(1)
		}
		fmt.Printf("✓ Wrote dataset to %s\n", *out)
		return
	}

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	client := &http.Client{Timeout: 30 * time.Second}

	ingest, err := ingestDataset(client, *baseURL, *tenantID, ds)
	if err != nil {
		fmt.Printf("ERROR: Failed to ingest dataset: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Ingested dataset %s in %dms\n", ingest.Dataset.ID, ingest.Metadata.IngestMs)

	if *skipAssess {
		return
	}

	report, err := assessDataset(client, *baseURL, *tenantID, ingest.Dataset.ID)
	if err != nil {
		fmt.Printf("ERROR: Assessment failed: %v\n", err)
		os.Exit(1)
	}

	printReport(report)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func ingestDataset(client *http.Client, baseURL, tenantID string, ds *domain.Dataset) (*IngestResponse, error) {
	body, err := json.Marshal(ds)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/datasets", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result IngestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func assessDataset(client *http.Client, baseURL, tenantID, datasetID string) (*domain.RiskReport, error) {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/datasets/"+datasetID+"/assess", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var report domain.RiskReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}

func printReport(r *domain.RiskReport) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      RISK ASSESSMENT                          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 OVERALL\n")
	fmt.Printf("   Report ID:  %s\n", r.ID)
	fmt.Printf("   Score:      %.1f / 100\n", r.OverallScore)
	fmt.Printf("   Level:      %s\n", r.OverallLevel)

	fmt.Printf("\n📈 CATEGORY SCORES\n")
	names := make([]string, 0, len(r.Categories))
	for name := range r.Categories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.Categories[names[i]].Score > r.Categories[names[j]].Score
	})
	for _, name := range names {
		c := r.Categories[name]
		fmt.Printf("   %-16s %6.1f  %s\n", name, c.Score, c.Level)
	}

	if len(r.TopRisks) > 0 {
		fmt.Printf("\n🎯 TOP RISKS\n")
		for i, tr := range r.TopRisks {
			fmt.Printf("   %d. %s (%.1f)\n", i+1, tr.Category, tr.Score)
		}
	}

	if len(r.Advisory) > 0 {
		fmt.Printf("\n⚠️  ADVISORY FINDINGS\n")
		for _, f := range r.Advisory {
			status := "ok"
			if f.Triggered {
				status = "TRIGGERED"
			}
			fmt.Printf("   %-24s %-10s %s\n", f.Name, status, f.Detail)
		}
	}

	if len(r.Mitigation) > 0 {
		fmt.Printf("\n💡 MITIGATION\n")
		for _, m := range r.Mitigation {
			fmt.Printf("   - %s\n", m)
		}
	}

	fmt.Printf("\n⏱️  Assessed in %dms (%d categories, %d rules)\n\n",
		r.Metadata.TotalMs, r.Metadata.CategoriesEvaluated, r.Metadata.RulesEvaluated)
}
