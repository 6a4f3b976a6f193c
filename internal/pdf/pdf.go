// Package pdf turns input documents into one image per page.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	// ErrUnsupportedFile is returned for inputs that are neither PDFs nor page images.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrPageOutOfRange is returned when a requested page does not exist.
	ErrPageOutOfRange = errors.New("page out of range")
)

// DefaultDPI is the render resolution when none is configured.
const DefaultDPI = 300

// MaxSelectedPages bounds a page selection.
const MaxSelectedPages = 100000

// PageImage is a rendered page on disk.
type PageImage struct {
	Number int    // 1-indexed page number in the source document
	Path   string // PNG, or the input itself for image files
}

// Renderer produces page images for a document.
type Renderer interface {
	// Render writes page images for path into outDir. A nil pages slice
	// renders every page; otherwise only the listed 1-indexed pages.
	Render(ctx context.Context, path, outDir string, pages []int) ([]PageImage, error)
}

// Kind classifies an input file by extension.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPDF
	KindImage
)

// KindOf returns how an input file will be handled.
func KindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF
	case ".png", ".jpg", ".jpeg":
		return KindImage
	default:
		return KindUnsupported
	}
}

// PopplerRenderer counts pages with pdfcpu and renders them with pdftoppm
// (poppler-utils). pdftoppm renders the page as displayed, unlike
// extracting embedded images whose numbering may not match page order.
type PopplerRenderer struct {
	DPI    int
	Binary string // Defaults to "pdftoppm" on PATH
	Logger *slog.Logger
}

// NewPopplerRenderer creates a renderer at the given resolution.
func NewPopplerRenderer(dpi int, logger *slog.Logger) *PopplerRenderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PopplerRenderer{
		DPI:    dpi,
		Binary: "pdftoppm",
		Logger: logger,
	}
}

// Render implements Renderer.
func (r *PopplerRenderer) Render(ctx context.Context, path, outDir string, pages []int) ([]PageImage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}

	switch KindOf(path) {
	case KindImage:
		if err := checkPages(pages, 1); err != nil {
			return nil, err
		}
		return []PageImage{{Number: 1, Path: path}}, nil
	case KindPDF:
		return r.renderPDF(ctx, path, outDir, pages)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(path))
	}
}

func (r *PopplerRenderer) renderPDF(ctx context.Context, pdfPath, outDir string, pages []int) ([]PageImage, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	// Try to decrypt to remove permission restrictions
	workingPath, cleanup := decryptPDF(pdfPath, conf)
	defer cleanup()

	pageCount, err := PageCount(workingPath)
	if err != nil {
		return nil, err
	}

	r.logger().Info("discovered PDF", "file", filepath.Base(pdfPath), "pages", pageCount)

	if err := checkPages(pages, pageCount); err != nil {
		return nil, err
	}
	if pages == nil {
		pages = make([]int, pageCount)
		for i := range pages {
			pages[i] = i + 1
		}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	out := make([]PageImage, 0, len(pages))
	for _, pageNum := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		imgPath, err := r.renderPage(ctx, workingPath, outDir, pageNum)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", pageNum, err)
		}
		out = append(out, PageImage{Number: pageNum, Path: imgPath})
	}
	return out, nil
}

// renderPage renders a single page using pdftoppm.
func (r *PopplerRenderer) renderPage(ctx context.Context, pdfPath, outDir string, pageNum int) (string, error) {
	// pdftoppm with -singlefile creates: <prefix>.png
	outputPrefix := filepath.Join(outDir, PageImageName(pageNum))

	// -f/-l: first and last page to render
	// -singlefile: don't add page number suffix (we handle naming ourselves)
	pageStr := strconv.Itoa(pageNum)
	cmd := exec.CommandContext(ctx, r.binary(),
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(r.dpi()),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	dstPath := outputPrefix + ".png"
	if _, err := os.Stat(dstPath); err != nil {
		return "", fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return dstPath, nil
}

func (r *PopplerRenderer) binary() string {
	if r.Binary == "" {
		return "pdftoppm"
	}
	return r.Binary
}

func (r *PopplerRenderer) dpi() int {
	if r.DPI <= 0 {
		return DefaultDPI
	}
	return r.DPI
}

func (r *PopplerRenderer) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// PageImageName returns the file name stem for a rendered page, e.g. page_0007.
func PageImageName(pageNum int) string {
	return fmt.Sprintf("page_%04d", pageNum)
}

// PageCount returns the number of pages in a PDF.
func PageCount(pdfPath string) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pageCount, err := api.PageCount(f, conf)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return pageCount, nil
}

// decryptPDF writes a decrypted copy of a permission-restricted PDF to a temp
// file. Unencrypted or undecryptable files are used as-is.
func decryptPDF(pdfPath string, conf *model.Configuration) (string, func()) {
	noop := func() {}

	tmp, err := os.CreateTemp("", "docupie-decrypt-*.pdf")
	if err != nil {
		return pdfPath, noop
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := api.DecryptFile(pdfPath, tmpPath, conf); err != nil {
		os.Remove(tmpPath)
		return pdfPath, noop
	}
	return tmpPath, func() { os.Remove(tmpPath) }
}

// checkPages validates a page selection against the page count.
func checkPages(pages []int, pageCount int) error {
	if pages == nil {
		return nil
	}
	if len(pages) == 0 {
		return fmt.Errorf("%w: empty page selection", ErrPageOutOfRange)
	}
	for _, p := range pages {
		if p < 1 || p > pageCount {
			return fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, p, pageCount)
		}
	}
	return nil
}

// ParsePages parses a selection such as "1-3,7" into sorted unique page numbers.
// An empty string selects every page and returns nil.
func ParsePages(sel string) ([]int, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return nil, nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		end := start
		if isRange {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		if start < 1 || end < start {
			return nil, fmt.Errorf("invalid page range %q", part)
		}
		if end-start >= MaxSelectedPages {
			return nil, fmt.Errorf("page range %q spans more than %d pages", part, MaxSelectedPages)
		}
		for p := start; p <= end; p++ {
			seen[p] = true
		}
		if len(seen) > MaxSelectedPages {
			return nil, fmt.Errorf("page selection %q selects more than %d pages", sel, MaxSelectedPages)
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("invalid page selection %q", sel)
	}

	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}
