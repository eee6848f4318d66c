package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// renderPage renders a single PDF page to PNG using pdftoppm (poppler-utils).
// pdftoppm renders the page correctly, unlike pdfcpu image extraction which
// pulls embedded image objects whose numbering may not match page order.
func (e *Extractor) renderPage(ctx context.Context, pdfPath string, pageNum int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "lumio-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// -png: output PNG format
	// -f/-l N: render exactly one page
	// -r: resolution in DPI
	// -singlefile: no page number suffix on the output name
	pageStr := strconv.Itoa(pageNum)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(e.renderDPI),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}
