package postprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	dbtypes "github.com/bureaudocs/filedepot-backend/pkg/db/types"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
	pkgerrors "github.com/bureaudocs/filedepot-backend/pkg/errors"
)

// Merge parameters accepted in post_process_params.
const (
	ParamOutputFilename = "output_filename"
	ParamPagesDimension = "pages_dimension"
)

const defaultMergeName = "merged"

// MergeProcessor concatenates PDF inputs into a single document,
// optionally normalising every page to a named paper width.
type MergeProcessor struct {
	uploads    uploadStore
	scratchDir string
}

// NewMergeProcessor wires the MERGE action.
func NewMergeProcessor(uploads uploadStore, scratchDir string) *MergeProcessor {
	return &MergeProcessor{uploads: uploads, scratchDir: scratchDir}
}

func (p *MergeProcessor) Action() enums.PostProcessAction {
	return enums.PostProcessActionMerge
}

func (p *MergeProcessor) Process(ctx context.Context, inputs []*models.Upload, params Params) (*ActionResult, error) {
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeMissingFile, "merge requires at least one input")
	}

	inFiles := make([]string, 0, len(inputs))
	inputIDs := make(dbtypes.UUIDArray, 0, len(inputs))
	for _, input := range inputs {
		if input.Mimetype != pdfMime {
			return nil, pkgerrors.New(pkgerrors.CodeFormatInvalid,
				fmt.Sprintf("merge input %s is %s, not a PDF", input.Name(), input.Mimetype))
		}
		inFiles = append(inFiles, p.uploads.AbsBlobPath(input.BlobPath))
		inputIDs = append(inputIDs, input.UUID)
	}

	scratch, err := os.MkdirTemp(p.scratchDir, "merge-")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create scratch dir")
	}
	defer os.RemoveAll(scratch)

	outPath := filepath.Join(scratch, uuid.NewString()+".pdf")
	if err := api.MergeCreateFile(inFiles, outPath, false, nil); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeFormatInvalid, err, "merge documents")
	}

	if dimension := params.String(ParamPagesDimension); dimension != "" {
		if err := normalizePageWidth(outPath, dimension); err != nil {
			return nil, err
		}
	}

	merged, err := os.Open(outPath)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open merged file")
	}
	defer merged.Close()

	name := params.String(ParamOutputFilename)
	if name == "" {
		name = defaultMergeName
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	output, err := p.uploads.CreateProcessedUpload(ctx, name, pdfMime, merged)
	if err != nil {
		return nil, err
	}

	return &ActionResult{
		Uploads: []*models.Upload{output},
		Lineages: []*models.PostProcessing{{
			UUID:        uuid.New(),
			Type:        enums.PostProcessActionMerge,
			InputFiles:  inputIDs,
			OutputFiles: dbtypes.UUIDArray{output.UUID},
		}},
	}, nil
}

// normalizePageWidth scales every page so its width matches the named
// paper size, keeping the aspect ratio.
func normalizePageWidth(pdfPath, dimension string) error {
	paper, ok := types.PaperSize[strings.ToUpper(strings.TrimSpace(dimension))]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInvalidMergeDimension,
			fmt.Sprintf("unknown page dimension %q", dimension)).
			WithDetails(map[string]any{"dimension": dimension})
	}
	resize, err := pdfcpu.ParseResizeConfig(fmt.Sprintf("dim:%d 0", int(paper.Width)), types.POINTS)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInvalidMergeDimension, err, "build resize config")
	}
	if err := api.ResizeFile(pdfPath, "", nil, resize, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeFormatInvalid, err, "resize merged pages")
	}
	return nil
}
