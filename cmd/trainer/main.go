// Command trainer fits the vectorizer and classifier from the labelled CSV
// datasets and writes both model artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NullMeDev/factlens/internal/config"
	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/training"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (training section)")
	fakePath := flag.String("fake", "", "CSV of fake articles")
	realPath := flag.String("real", "", "CSV of real articles")
	vectorizerOut := flag.String("vectorizer-out", "", "where to write the vectorizer")
	classifierOut := flag.String("classifier-out", "", "where to write the classifier")
	seed := flag.Int64("seed", 0, "shuffle seed (0 keeps the configured seed)")
	maxFeatures := flag.Int("max-features", 0, "vocabulary size (0 keeps the configured value)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trainer: %v\n", err)
		os.Exit(1)
	}

	tc := cfg.Training
	overrideString(&tc.FakePath, *fakePath)
	overrideString(&tc.RealPath, *realPath)
	overrideString(&tc.VectorizerOut, *vectorizerOut)
	overrideString(&tc.ClassifierOut, *classifierOut)
	if *seed != 0 {
		tc.Seed = *seed
	}
	if *maxFeatures > 0 {
		tc.Vectorizer.MaxFeatures = *maxFeatures
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	log, err := logging.New(logging.Config{Level: level, Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "trainer: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := training.Run(ctx, tc, log)
	if err != nil {
		log.Error("Training failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("Trained on %d articles, evaluated on %d, %d features, took %s\n\n",
		result.TrainSamples, result.TestSamples, result.Features, result.Elapsed.Round(time.Millisecond))
	fmt.Print(result.Report.String())
}

func overrideString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
