package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// lowConfidence is the mean word confidence below which a second
// tesseract pass with a binarized image is attempted.
const lowConfidence = 0.5

// localOCR runs tesseract over a preprocessed copy of the page image.
// A faint result triggers one more pass with a high-contrast variant;
// whichever pass reads with more confidence wins.
func (e *Extractor) localOCR(ctx context.Context, image []byte) (*ocrResult, error) {
	prepped, err := preprocess(image)
	if err != nil {
		return nil, err
	}
	result, err := e.runTesseract(ctx, prepped)
	if err != nil {
		return nil, err
	}
	if result.Confidence >= lowConfidence && strings.TrimSpace(result.Text) != "" {
		return result, nil
	}

	contrast, err := preprocessHighContrast(image)
	if err != nil {
		return result, nil
	}
	retried, err := e.runTesseract(ctx, contrast)
	if err != nil || retried.Confidence <= result.Confidence {
		return result, nil
	}
	return retried, nil
}

// runTesseract invokes the tesseract binary in TSV mode and assembles
// lines and a mean word confidence from its output.
func (e *Extractor) runTesseract(ctx context.Context, image []byte) (*ocrResult, error) {
	tmp, err := os.CreateTemp("", "lumio-ocr-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to stage image for OCR: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to stage image for OCR: %w", err)
	}
	tmp.Close()

	cmd := exec.CommandContext(ctx, e.tesseractBin, tmp.Name(), "stdout", "tsv")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tesseract failed: %w", err)
	}

	return parseTesseractTSV(string(output)), nil
}

// parseTesseractTSV walks tesseract's TSV output. Word rows carry
// level 5 with a confidence column; rows are grouped into lines by
// their block/paragraph/line indices.
func parseTesseractTSV(tsv string) *ocrResult {
	var (
		lines       []string
		currentLine []string
		currentKey  string
		confSum     float64
		confCount   int
	)

	flush := func() {
		if len(currentLine) > 0 {
			lines = append(lines, strings.Join(currentLine, " "))
			currentLine = nil
		}
	}

	for i, row := range strings.Split(tsv, "\n") {
		if i == 0 {
			continue // header
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 {
			continue
		}
		if cols[0] != "5" {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		confSum += conf
		confCount++

		key := cols[2] + "/" + cols[3] + "/" + cols[4]
		if key != currentKey {
			flush()
			currentKey = key
		}
		currentLine = append(currentLine, word)
	}
	flush()

	result := &ocrResult{
		Text:  strings.Join(lines, "\n"),
		Lines: lines,
	}
	if confCount > 0 {
		result.Confidence = confSum / float64(confCount) / 100
	}
	return result
}
