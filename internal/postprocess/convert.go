package postprocess

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	dbtypes "github.com/bureaudocs/filedepot-backend/pkg/db/types"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

const pdfMime = "application/pdf"

// Converter turns one source file into a PDF on disk.
type Converter interface {
	Supports(mimeType string) bool
	Convert(ctx context.Context, srcPath, scratchDir string) (pdfPath string, err error)
}

// ImageConverter renders raster images into single-page PDFs.
type ImageConverter struct{}

var imageConvertMimes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/tiff": {},
}

func (ImageConverter) Supports(mimeType string) bool {
	_, ok := imageConvertMimes[mimeType]
	return ok
}

func (ImageConverter) Convert(_ context.Context, srcPath, scratchDir string) (string, error) {
	outPath := filepath.Join(scratchDir, uuid.NewString()+".pdf")
	if err := api.ImportImagesFile([]string{srcPath}, outPath, nil, nil); err != nil {
		return "", fmt.Errorf("import image into pdf: %w", err)
	}
	return outPath, nil
}

// OfficeConverter shells out to a headless office suite for
// text-document and spreadsheet formats.
type OfficeConverter struct {
	Binary  string
	Timeout time.Duration
}

var officeConvertMimes = map[string]struct{}{
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.oasis.opendocument.text":                                 {},
	"application/vnd.ms-excel":                                                {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       {},
	"application/vnd.oasis.opendocument.spreadsheet":                          {},
	"text/plain": {},
	"text/csv":   {},
}

func (OfficeConverter) Supports(mimeType string) bool {
	_, ok := officeConvertMimes[mimeType]
	return ok
}

func (c OfficeConverter) Convert(ctx context.Context, srcPath, scratchDir string) (string, error) {
	binary := c.Binary
	if binary == "" {
		binary = "soffice"
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary,
		"--headless", "--norestore",
		"--convert-to", "pdf",
		"--outdir", scratchDir,
		srcPath,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s convert failed: %w (%s)", binary, err, strings.TrimSpace(stderr.String()))
	}

	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	outPath := filepath.Join(scratchDir, base+".pdf")
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("%s produced no output for %s", binary, filepath.Base(srcPath))
	}
	return outPath, nil
}

// ConvertProcessor materialises every supported input as a PDF upload.
type ConvertProcessor struct {
	uploads    uploadStore
	converters []Converter
	scratchDir string
}

// NewConvertProcessor wires the CONVERT action.
func NewConvertProcessor(uploads uploadStore, scratchDir string, converters ...Converter) *ConvertProcessor {
	return &ConvertProcessor{uploads: uploads, converters: converters, scratchDir: scratchDir}
}

func (p *ConvertProcessor) Action() enums.PostProcessAction {
	return enums.PostProcessActionConvert
}

func (p *ConvertProcessor) Process(ctx context.Context, inputs []*models.Upload, _ Params) (*ActionResult, error) {
	result := &ActionResult{}
	for _, input := range inputs {
		if input.Mimetype == pdfMime {
			result.Uploads = append(result.Uploads, input)
			continue
		}
		converter := p.converterFor(input.Mimetype)
		if converter == nil {
			return nil, pkgerrors.New(pkgerrors.CodeMissingFile,
				fmt.Sprintf("no converter produces a PDF for %s (%s)", input.Name(), input.Mimetype))
		}

		output, err := p.convertOne(ctx, converter, input)
		if err != nil {
			return nil, err
		}
		result.Uploads = append(result.Uploads, output)
		result.Lineages = append(result.Lineages, &models.PostProcessing{
			UUID:        uuid.New(),
			Type:        enums.PostProcessActionConvert,
			InputFiles:  dbtypes.UUIDArray{input.UUID},
			OutputFiles: dbtypes.UUIDArray{output.UUID},
		})
	}
	return result, nil
}

func (p *ConvertProcessor) converterFor(mimeType string) Converter {
	for _, converter := range p.converters {
		if converter.Supports(mimeType) {
			return converter
		}
	}
	return nil
}

func (p *ConvertProcessor) convertOne(ctx context.Context, converter Converter, input *models.Upload) (*models.Upload, error) {
	scratch, err := os.MkdirTemp(p.scratchDir, "convert-")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create scratch dir")
	}
	defer os.RemoveAll(scratch)

	pdfPath, err := converter.Convert(ctx, p.uploads.AbsBlobPath(input.BlobPath), scratch)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeFormatInvalid, err, fmt.Sprintf("convert %s", input.Name()))
	}

	pdf, err := os.Open(pdfPath)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open converted file")
	}
	defer pdf.Close()

	name := strings.TrimSuffix(input.Name(), filepath.Ext(input.Name())) + ".pdf"
	return p.uploads.CreateProcessedUpload(ctx, name, pdfMime, pdf)
}
