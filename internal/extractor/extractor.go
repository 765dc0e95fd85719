// Package extractor turns a PDF path into an ordered sequence of per-page
// text, falling back to OCR for pages with no usable text layer.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/image/draw"
)

const (
	Native = "NATIVE"
	OCR    = "OCR"
)

// ErrExtractFail reports a PDF that cannot be opened at all.
var ErrExtractFail = errors.New("extractor: failed to open pdf")

// PageText is the extraction result for a single 1-indexed page.
type PageText struct {
	PageNumber int
	Text       string
	Method     string
	Confidence float64
}

// Extractor renders and OCRs pages that lack a usable native text layer.
// The OCR path shells out to poppler's pdftoppm and tesseract rather than
// linking a CGo OCR engine, so the core stays a single static binary.
type Extractor struct {
	nativeMin    int
	ocrDPI       int
	tesseractCmd string
	pdftoppmCmd  string
	maxDimension int
}

type Option func(*Extractor)

func WithNativeMin(n int) Option { return func(e *Extractor) { e.nativeMin = n } }
func WithOCRDPI(dpi int) Option  { return func(e *Extractor) { e.ocrDPI = dpi } }
func WithTesseractCmd(cmd string) Option {
	return func(e *Extractor) {
		if cmd != "" {
			e.tesseractCmd = cmd
		}
	}
}

// New builds an Extractor with spec defaults: NATIVE_MIN=50, OCR_DPI=300.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		nativeMin:    50,
		ocrDPI:       300,
		tesseractCmd: "tesseract",
		pdftoppmCmd:  "pdftoppm",
		maxDimension: 3500,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractPages yields PageText for every page of path, in order. A page that
// fails every extraction path is emitted as ("", NATIVE, 0.0) rather than
// shortening the result, so page numbering stays aligned with the source
// document.
func (e *Extractor) ExtractPages(ctx context.Context, path string) ([]PageText, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtractFail, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtractFail, path, err)
	}

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtractFail, path, err)
	}

	numPages := r.NumPage()
	pages := make([]PageText, 0, numPages)
	for i := 1; i <= numPages; i++ {
		pages = append(pages, e.extractPage(ctx, r, path, i))
	}
	return pages, nil
}

func (e *Extractor) extractPage(ctx context.Context, r *pdf.Reader, path string, pageNum int) PageText {
	native := e.nativeText(r, pageNum)
	trimmed := strings.TrimSpace(native)
	if len(trimmed) >= e.nativeMin {
		return PageText{PageNumber: pageNum, Text: native, Method: Native, Confidence: 1.0}
	}

	ocrText, conf, err := e.ocrPage(ctx, path, pageNum)
	if err != nil {
		if trimmed == "" {
			return PageText{PageNumber: pageNum, Text: "", Method: Native, Confidence: 0.0}
		}
		// OCR failed but there was sparse native text — better than nothing.
		return PageText{PageNumber: pageNum, Text: native, Method: Native, Confidence: 0.5}
	}
	return PageText{PageNumber: pageNum, Text: ocrText, Method: OCR, Confidence: conf}
}

// nativeText extracts the page's text layer, tolerating pages with no
// glyphs or a corrupt content stream — both surface as "" rather than error.
func (e *Extractor) nativeText(r *pdf.Reader, pageNum int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	page := r.Page(pageNum)
	if page.V.IsNull() {
		return ""
	}
	t, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return t
}

// ocrPage rasterizes pageNum at ocrDPI, normalizes it, and runs OCR. The
// whole page is bounded by a 60 s budget; past it the subprocesses are
// killed and the page fails. All temp files and the renderer/OCR
// subprocesses are released before return.
func (e *Extractor) ocrPage(ctx context.Context, path string, pageNum int) (string, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	dir, err := os.MkdirTemp("", "redactqc-ocr-*")
	if err != nil {
		return "", 0, err
	}
	defer os.RemoveAll(dir)

	rawPNG := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, e.pdftoppmCmd,
		"-f", strconv.Itoa(pageNum), "-l", strconv.Itoa(pageNum),
		"-r", strconv.Itoa(e.ocrDPI), "-png", "-singlefile",
		path, rawPNG,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", 0, fmt.Errorf("pdftoppm: %w: %s", err, string(out))
	}

	normalized := filepath.Join(dir, "normalized.png")
	if err := e.normalizeImage(rawPNG+".png", normalized); err != nil {
		return "", 0, err
	}

	return e.runTesseract(ctx, normalized)
}

// normalizeImage downscales an oversized rasterized page, preserving its
// aspect ratio, so OCR stays within a bounded memory/time budget.
func (e *Extractor) normalizeImage(srcPath, dstPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return err
	}

	out := resizeToFit(src, e.maxDimension)

	w, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer w.Close()
	return png.Encode(w, out)
}

func resizeToFit(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return src
	}
	scale := float64(maxDim) / float64(w)
	if hScale := float64(maxDim) / float64(h); hScale < scale {
		scale = hScale
	}
	newW, newH := int(float64(w)*scale), int(float64(h)*scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// runTesseract OCRs imgPath and returns (text, mean_word_confidence/100).
// It asks tesseract for TSV output so per-word confidences can be averaged
// the same way the reference implementation does via image_to_data.
func (e *Extractor) runTesseract(ctx context.Context, imgPath string) (string, float64, error) {
	cmd := exec.CommandContext(ctx, e.tesseractCmd, imgPath, "stdout", "--psm", "3", "tsv")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", 0, fmt.Errorf("tesseract: %w: %s", err, stderr.String())
	}
	return parseTesseractTSV(stdout.String())
}

// parseTesseractTSV reads tesseract's --psm N tsv output: a header row
// followed by one row per detected text element, the last (conf, text)
// columns holding a confidence in [-1,100] and the recognized word.
func parseTesseractTSV(tsv string) (string, float64, error) {
	lines := strings.Split(tsv, "\n")
	if len(lines) < 2 {
		return "", 0, nil
	}
	header := strings.Split(lines[0], "\t")
	confCol, textCol := -1, -1
	for i, h := range header {
		switch h {
		case "conf":
			confCol = i
		case "text":
			textCol = i
		}
	}
	if confCol < 0 || textCol < 0 {
		return "", 0, fmt.Errorf("tesseract tsv: unrecognized header %q", lines[0])
	}

	var words []string
	var sum, count int
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if confCol >= len(cols) || textCol >= len(cols) {
			continue
		}
		word := strings.TrimSpace(cols[textCol])
		conf, err := strconv.Atoi(strings.TrimSpace(cols[confCol]))
		if err != nil || conf < 0 {
			continue
		}
		if word == "" {
			continue
		}
		words = append(words, word)
		sum += conf
		count++
	}

	mean := 0.0
	if count > 0 {
		mean = float64(sum) / float64(count) / 100.0
	}
	return strings.Join(words, " "), mean, nil
}
