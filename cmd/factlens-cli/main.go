// Command factlens-cli checks one article from the terminal, either locally
// against the model artifacts or through a running factlens API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NullMeDev/factlens/internal/config"
	"github.com/NullMeDev/factlens/internal/extract"
	"github.com/NullMeDev/factlens/internal/links"
	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/predict"
	"github.com/NullMeDev/factlens/internal/verify"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	url := flag.String("url", "", "article URL to check")
	text := flag.String("text", "", "article text to check (- reads stdin)")
	title := flag.String("title", "", "headline used for the link search")
	host := flag.String("host", "", "factlens API base URL; empty runs locally")
	asJSON := flag.Bool("json", false, "print the raw report as JSON")
	timeout := flag.Duration("timeout", 60*time.Second, "overall timeout")
	flag.Parse()

	req := verify.Request{URL: *url, Text: *text, Title: *title, Origin: verify.OriginCLI}
	if req.Text == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fail(err)
		}
		req.Text = string(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		report *verify.Report
		err    error
	)
	if *host != "" {
		report, err = analyzeRemote(ctx, *host, req)
	} else {
		report, err = analyzeLocal(ctx, *configPath, req)
	}
	if err != nil {
		fail(err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		return
	}
	printReport(os.Stdout, report)
}

func analyzeLocal(ctx context.Context, configPath string, req verify.Request) (*verify.Report, error) {
	cfg, err := config.Load(configPath, ".env")
	if err != nil {
		return nil, err
	}

	engine, err := predict.Load(cfg.Model.VectorizerPath, cfg.Model.ClassifierPath, predict.WithPolicy(cfg.Model.Policy()))
	if err != nil {
		return nil, err
	}

	log := logging.Nop()
	extractor := extract.New(cfg.Extract.Options(), log)
	defer extractor.Close()

	store, err := links.NewStore(cfg.Links.TemplatesPath, log)
	if err != nil {
		return nil, err
	}
	var opts []links.Option
	if condenser := links.NewOpenAICondenser(cfg.OpenAI.Options()); condenser != nil {
		opts = append(opts, links.WithCondenser(condenser))
	}

	return verify.New(engine, extractor, links.NewRouter(store, log, opts...)).Analyze(ctx, req)
}

func analyzeRemote(ctx context.Context, host string, req verify.Request) (*verify.Report, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(host, "/")+"/api/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var report verify.Report
	if err := json.Unmarshal(data, &report); err != nil || report.Prediction.Label == "" {
		return nil, fmt.Errorf("response [%d]: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return &report, nil
}

func printReport(w io.Writer, r *verify.Report) {
	out := r.Prediction
	if out.IsError() {
		fmt.Fprintf(w, "Analysis failed: %s\n", out.Error)
		return
	}

	if r.Title != "" {
		fmt.Fprintf(w, "%s\n", r.Title)
	}
	fmt.Fprintf(w, "Verdict:    %s (%.2f%% confidence)\n", out.Label, out.Confidence)
	fmt.Fprintf(w, "Fake:       %.2f%%\n", out.FakeProbability)
	fmt.Fprintf(w, "Real:       %.2f%%\n", out.RealProbability)
	fmt.Fprintf(w, "Words:      %d (threshold %.2f)\n", out.WordCount, out.Threshold)
	if out.Uncertain {
		fmt.Fprintln(w, "Note:       the model was not confident either way")
	}

	printLinks(w, "Fact-check", r.Links.FactCheck)
	printLinks(w, "Related news", r.Links.Related)
}

func printLinks(w io.Writer, heading string, list []links.Link) {
	if len(list) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", heading)
	for _, l := range list {
		fmt.Fprintf(w, "  - %s\n    %s\n", l.Title, l.URL)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "factlens-cli: %v\n", err)
	os.Exit(1)
}
