// Replay tool for measuring PaySentry against labelled QR samples.
//
// Usage:
//
//	go run ./cmd/replay -csv /path/to/samples.csv -url http://localhost:8080
//
// The CSV needs a "qr" column and a "label" column ("fraud"/"1"/"true" marks a
// known scam). An optional "amount" column is sent with each scan. The tool
// posts every row to /scans and reports a confusion matrix, precision and
// recall for the risky verdict.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Sample is one labelled QR string.
type Sample struct {
	QR     string
	Amount string
	Fraud  bool
}

// scanRequest mirrors the POST /scans body.
type scanRequest struct {
	QR     string          `json:"qr"`
	Amount json.RawMessage `json:"amount,omitempty"`
}

// scanResponse is the subset of the POST /scans response the tool reads.
type scanResponse struct {
	Valid   bool   `json:"valid"`
	Failure string `json:"failure"`
	Risk    *struct {
		Score   int      `json:"score"`
		Level   string   `json:"level"`
		Reasons []string `json:"reasons"`
	} `json:"risk"`
}

// Metrics tracks replay results.
type Metrics struct {
	TruePositives  int64 // Scam flagged
	FalsePositives int64 // Legitimate flagged
	TrueNegatives  int64 // Legitimate passed
	FalseNegatives int64 // Scam passed

	TotalProcessed int64
	TotalInvalid   int64 // Not a payment address; counted as flagged
	TotalErrors    int64

	ProcessingTimeMs int64
}

// Record adds one verdict to the confusion matrix.
func (m *Metrics) Record(predicted, actual bool) {
	switch {
	case predicted && actual:
		atomic.AddInt64(&m.TruePositives, 1)
	case predicted && !actual:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !predicted && !actual:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}
}

// Precision is TP / (TP + FP), zero when nothing was flagged.
func (m *Metrics) Precision() float64 {
	if m.TruePositives+m.FalsePositives == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
}

// Recall is TP / (TP + FN), zero when there were no scams.
func (m *Metrics) Recall() float64 {
	if m.TruePositives+m.FalseNegatives == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (m *Metrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled samples CSV")
	baseURL := flag.String("url", "http://localhost:8080", "PaySentry base URL")
	userID := flag.String("user", "replay-test", "User ID for requests")
	limit := flag.Int("limit", 0, "Maximum samples to replay (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	moderate := flag.Bool("moderate", false, "Count moderate verdicts as flagged")
	verbose := flag.Bool("verbose", false, "Print each sample result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/samples.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("PAYSENTRY REPLAY - labelled QR samples")
	fmt.Printf("\nCSV File:       %s\n", *csvPath)
	fmt.Printf("PaySentry URL:  %s\n", *baseURL)
	fmt.Printf("User ID:        %s\n", *userID)
	fmt.Printf("Workers:        %d\n", *workers)
	fmt.Printf("Flag Moderate:  %v\n", *moderate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: PaySentry not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure PaySentry is running:")
		fmt.Println("  go run ./cmd/paysentry")
		os.Exit(1)
	}
	fmt.Println("PaySentry is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	samples, err := readSamples(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d samples\n", len(samples))

	startTime := time.Now()
	metrics := runReplay(samples, *baseURL, *userID, *workers, *moderate, *verbose)
	printResults(metrics, time.Since(startTime))
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

func readSamples(r io.Reader, limit int) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	qrCol, ok := colIndex["qr"]
	if !ok {
		return nil, errors.New("missing qr column")
	}
	labelCol, ok := colIndex["label"]
	if !ok {
		return nil, errors.New("missing label column")
	}
	amountCol, hasAmount := colIndex["amount"]

	var samples []Sample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(record) <= qrCol || len(record) <= labelCol {
			continue // Skip malformed rows
		}

		s := Sample{
			QR:    record[qrCol],
			Fraud: isFraudLabel(record[labelCol]),
		}
		if hasAmount && len(record) > amountCol {
			s.Amount = strings.TrimSpace(record[amountCol])
		}
		samples = append(samples, s)

		if limit > 0 && len(samples) >= limit {
			break
		}
	}

	return samples, nil
}

func isFraudLabel(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "1", "true", "fraud", "scam", "risky":
		return true
	default:
		return false
	}
}

// flagged reports whether a response counts as a warning to the user.
func flagged(resp *scanResponse, moderate bool) bool {
	if !resp.Valid || resp.Risk == nil {
		return true
	}
	switch resp.Risk.Level {
	case "risky":
		return true
	case "moderate":
		return moderate
	default:
		return false
	}
}

func runReplay(samples []Sample, baseURL, userID string, numWorkers int, moderate, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan Sample, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for s := range work {
				start := time.Now()
				resp, err := submitScan(client, baseURL, userID, s)
				atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", s.QR, err)
					}
					continue
				}
				if !resp.Valid {
					atomic.AddInt64(&metrics.TotalInvalid, 1)
				}

				predicted := flagged(resp, moderate)
				metrics.Record(predicted, s.Fraud)

				if verbose {
					mark := "ok "
					if predicted != s.Fraud {
						mark = "MISS"
					}
					level := resp.Failure
					if resp.Risk != nil {
						level = resp.Risk.Level
					}
					fmt.Printf("%s fraud=%-5v verdict=%-10s %s\n", mark, s.Fraud, level, s.QR)
				}
			}
		}()
	}

	for _, s := range samples {
		work <- s
	}
	close(work)
	wg.Wait()

	return metrics
}

func submitScan(client *http.Client, baseURL, userID string, s Sample) (*scanResponse, error) {
	req := scanRequest{QR: s.QR}
	if s.Amount != "" {
		req.Amount = json.RawMessage(`"` + s.Amount + `"`)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/scans", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", userID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nREPLAY RESULTS")

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Invalid QR:       %d\n", m.TotalInvalid)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                     Predicted")
	fmt.Println("                  FLAG      PASS")
	fmt.Printf("   Actual  scam  %8d  %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           legit %8d  %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", m.Precision())
	fmt.Printf("   Recall:     %.4f\n", m.Recall())
	fmt.Printf("   F1-Score:   %.4f\n", m.F1())

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Avg Latency:      %.2f ms\n", float64(m.ProcessingTimeMs)/float64(m.TotalProcessed))
		fmt.Printf("   Throughput:       %.2f scans/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
