package main

import (
	"github.com/spf13/cobra"

	"github.com/lumio-app/lumio/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lumio",
	Short: "Document processing pipeline with AI-powered OCR and content analysis",
	Long: `Lumio turns uploaded PDFs and images into analyzed, shareable text.

The pipeline includes:
  - Text-layer extraction with OCR fallback (AI vision, then tesseract)
  - PII redaction before any text leaves the pipeline
  - Content analysis: readability, sentiment, hashtags, rewrites
  - Durable Redis-backed job queue with retries and progress polling`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.lumio/config.yaml)",
	)

	rootCmd.AddCommand(versionCmd)
}
