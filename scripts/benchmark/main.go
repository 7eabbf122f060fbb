package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
)

// CLI flags
var (
	apiURL      = flag.String("api-url", "http://localhost:8080", "pdfpool API base URL")
	apiKey      = flag.String("api-key", "", "API key for authenticated requests")
	runs        = flag.Int("runs", 10, "Number of renders per document")
	concurrency = flag.Int("concurrency", 4, "Concurrent renders in flight")
	output      = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Test documents covering typical render workloads.
var testDocs = []struct {
	Label string
	HTML  string
}{
	{"Plain", `<html><body><h1>Hello</h1><p>Plain paragraph.</p></body></html>`},
	{"Styled", `<html><head><style>body{font-family:serif;background:#fafafa}h1{color:#336}</style></head>` +
		`<body><h1>Styled</h1><p style="padding:2em;border:1px solid #ccc">Boxed text.</p></body></html>`},
	{"Table", `<html><body><table border="1">` + strings.Repeat(`<tr><td>cell</td><td>42</td><td>3.14</td></tr>`, 400) + `</table></body></html>`},
	{"Multipage", `<html><body>` + strings.Repeat(`<p style="page-break-after:always">Page</p>`, 25) + `</body></html>`},
	{"External", `<html><body><img src="https://www.google.com/images/branding/googlelogo/1x/googlelogo_color_272x92dp.png"></body></html>`},
}

// --- Request / Response types (mirrors models package) ---

type renderRequest struct {
	HTML    string `json:"html"`
	Format  string `json:"format"`
	Timeout int    `json:"timeout"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type failureResponse struct {
	Error *errorDetail `json:"error"`
}

// --- Benchmark result types ---

type runResult struct {
	Run        int    `json:"run"`
	LatencyMs  int64  `json:"latency_ms"`
	ServerMs   int64  `json:"server_ms"`
	RetryCount int    `json:"retry_count"`
	Bytes      int    `json:"bytes"`
	HTTPStatus int    `json:"http_status"`
	Success    bool   `json:"success"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
}

type docSummary struct {
	Successes  int            `json:"successes"`
	Failures   map[string]int `json:"failures,omitempty"`
	AvgMs      float64        `json:"avg_ms"`
	P50Ms      int64          `json:"p50_ms"`
	P95Ms      int64          `json:"p95_ms"`
	AvgRetries float64        `json:"avg_retries"`
	AvgBytes   float64        `json:"avg_bytes"`
}

type docResult struct {
	Label   string      `json:"label"`
	Runs    []runResult `json:"runs"`
	Summary docSummary  `json:"summary"`
}

type benchmarkReport struct {
	Timestamp   string      `json:"timestamp"`
	APIURL      string      `json:"api_url"`
	RunsPerDoc  int         `json:"runs_per_doc"`
	Concurrency int         `json:"concurrency"`
	Results     []docResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== pdfpool Benchmark Suite ===")
	fmt.Printf("API URL:      %s\n", *apiURL)
	fmt.Printf("Runs/doc:     %d\n", *runs)
	fmt.Printf("Concurrency:  %d\n", *concurrency)
	fmt.Printf("Output:       %s\n", *output)
	fmt.Println()

	// Quick connectivity check.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure pdfpool is running (e.g. pdfpool serve)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		APIURL:      *apiURL,
		RunsPerDoc:  *runs,
		Concurrency: *concurrency,
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	for _, d := range testDocs {
		fmt.Printf("Benchmarking [%s] ... ", d.Label)
		dr := docResult{Label: d.Label, Runs: make([]runResult, *runs)}

		var g errgroup.Group
		g.SetLimit(*concurrency)
		for i := 0; i < *runs; i++ {
			g.Go(func() error {
				dr.Runs[i] = renderDoc(client, d.HTML, i+1)
				return nil
			})
		}
		_ = g.Wait()

		dr.Summary = summarize(dr.Runs)
		report.Results = append(report.Results, dr)
		fmt.Printf("%d/%d ok\n", dr.Summary.Successes, *runs)
	}
	fmt.Println()

	// Print summary table.
	printTable(report.Results)

	// Write JSON report.
	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

var printMu sync.Mutex

func renderDoc(client *http.Client, html string, run int) runResult {
	rr := runResult{Run: run}

	bodyBytes, err := json.Marshal(renderRequest{HTML: html, Format: "A4", Timeout: 60000})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/render", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	rr.LatencyMs = time.Since(start).Milliseconds()
	rr.HTTPStatus = resp.StatusCode
	if err != nil {
		rr.Error = fmt.Sprintf("read error: %v", err)
		return rr
	}

	if resp.StatusCode != http.StatusOK {
		var fr failureResponse
		if err := json.Unmarshal(body, &fr); err == nil && fr.Error != nil {
			rr.Code = fr.Error.Code
			rr.Error = fr.Error.Message
		} else {
			rr.Code = strconv.Itoa(resp.StatusCode)
		}
		printMu.Lock()
		fmt.Printf("\n  run %d failed: [%s] %s", run, rr.Code, rr.Error)
		printMu.Unlock()
		return rr
	}

	rr.Success = true
	rr.Bytes = len(body)
	rr.ServerMs, _ = strconv.ParseInt(resp.Header.Get("X-Generation-Time-Ms"), 10, 64)
	rr.RetryCount, _ = strconv.Atoi(resp.Header.Get("X-Retry-Count"))
	return rr
}

func summarize(runs []runResult) docSummary {
	var s docSummary
	var latencies []int64
	var retries, size float64

	for _, r := range runs {
		if !r.Success {
			if s.Failures == nil {
				s.Failures = map[string]int{}
			}
			code := r.Code
			if code == "" {
				code = "TRANSPORT"
			}
			s.Failures[code]++
			continue
		}
		s.Successes++
		latencies = append(latencies, r.LatencyMs)
		retries += float64(r.RetryCount)
		size += float64(r.Bytes)
	}

	if s.Successes == 0 {
		return s
	}

	slices.Sort(latencies)
	var total int64
	for _, l := range latencies {
		total += l
	}
	n := float64(s.Successes)
	s.AvgMs = float64(total) / n
	s.P50Ms = percentile(latencies, 0.50)
	s.P95Ms = percentile(latencies, 0.95)
	s.AvgRetries = retries / n
	s.AvgBytes = size / n
	return s
}

// percentile expects sorted input.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printTable(results []docResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Document\tAvg\tp50\tp95\tRetries\tSize\tOK\n")
	fmt.Fprintf(w, "────────\t───\t───\t───\t───────\t────\t──\n")

	for _, r := range results {
		s := r.Summary
		if s.Successes == 0 {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\t-\t0/%d\n", r.Label, len(r.Runs))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%dms\t%.2f\t%s\t%d/%d\n",
			r.Label,
			int64(s.AvgMs),
			s.P50Ms,
			s.P95Ms,
			s.AvgRetries,
			formatBytes(int(s.AvgBytes)),
			s.Successes,
			len(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
