package image

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

// TextractAPI is the part of the Textract client the engine uses.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractEngine sends the image to AWS Textract and keeps LINE blocks at or
// above the configured confidence.
type TextractEngine struct {
	client        TextractAPI
	minConfidence float32
	logger        logger.Logger
}

func NewTextractEngine(client TextractAPI, minConfidence float64, log logger.Logger) *TextractEngine {
	if log == nil {
		log = logger.NewNop()
	}
	return &TextractEngine{client: client, minConfidence: float32(minConfidence), logger: log.Named("textract")}
}

// NewTextractClient builds a Textract client from the environment
// configuration.
func NewTextractClient(ctx context.Context, cfg *config.TextractConfig) (*textract.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func (e *TextractEngine) Name() string { return "textract" }

func (e *TextractEngine) Recognize(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read image: %w", err)
	}
	if progress != nil {
		progress("uploading", 0)
	}

	out, err := e.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to detect document text: %w", err)
	}

	lines, confidence := e.lines(out.Blocks)
	if progress != nil {
		progress("done", 1)
	}
	return Result{Text: strings.Join(lines, "\n"), Confidence: confidence}, nil
}

func (e *TextractEngine) lines(blocks []types.Block) ([]string, float64) {
	var texts []string
	var total float64
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < e.minConfidence {
			continue
		}
		texts = append(texts, *block.Text)
		if block.Confidence != nil {
			total += float64(*block.Confidence)
		}
	}
	if len(texts) == 0 {
		return nil, 0
	}
	return texts, total / float64(len(texts))
}
