package modelcard

import (
	"bytes"
	"context"
	"text/template"

	"github.com/sirupsen/logrus"

	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/model"
)

// ReadmeFileName is the upstream document the metadata block is read from,
// and the name the built document is published under.
const ReadmeFileName = "README.md"

const (
	DefaultToolName = "llama.cpp"
	DefaultToolURL  = "https://github.com/ggml-org/llama.cpp"
)

// Document is a rendered model card.
type Document []byte

func (d Document) Bytes() []byte  { return d }
func (d Document) String() string { return string(d) }

// TextFetcher retrieves a text file belonging to a model from the source
// registry.
type TextFetcher interface {
	FetchTextFile(ctx context.Context, id model.ID, name string) (string, error)
}

// Fetcher retrieves the upstream metadata block.
type Fetcher struct {
	Source TextFetcher
	Log    logging.Logger
}

// FetchUpstreamMetadata returns the metadata block of the model's upstream
// README. Any failure yields Placeholder; it never fails.
func (f *Fetcher) FetchUpstreamMetadata(ctx context.Context, id model.ID) string {
	log := f.Log.WithFields(logrus.Fields{"model": logging.SanitizeForLog(id.String())})
	doc, err := f.Source.FetchTextFile(ctx, id, ReadmeFileName)
	if err != nil {
		log.WithError(err).Warn("Could not fetch upstream README, using placeholder metadata")
		return Placeholder
	}
	block, ok := ExtractMetadata(doc)
	if !ok {
		log.Warn("Upstream README has no metadata block, using placeholder metadata")
		return Placeholder
	}
	return block
}

// Builder renders model cards for one quantization scheme.
type Builder struct {
	Scheme   string
	ToolName string
	ToolURL  string
	// SourceURL returns the upstream page of a model. Nil means no link.
	SourceURL func(id model.ID) string
	// Namespace is the destination namespace, used in the usage snippet.
	Namespace string
}

var cardTemplate = template.Must(template.New("card").Parse(`{{.Metadata}}

# {{.Title}}

This model was converted to GGUF format from {{if .SourceURL}}[` + "`{{.Source}}`" + `]({{.SourceURL}}){{else}}` + "`{{.Source}}`" + `{{end}} using [{{.ToolName}}]({{.ToolURL}}).

| | |
|---|---|
| Source model | ` + "`{{.Source}}`" + ` |
| Format | GGUF |
| Quantization | {{.Scheme}} |
| File | ` + "`{{.File}}`" + ` |

## Use with llama.cpp

` + "```" + `bash
llama-cli --hf-repo {{.DestinationID}} --hf-file {{.File}} -p "The meaning to life and the universe is"
` + "```" + `

` + "```" + `bash
llama-server --hf-repo {{.DestinationID}} --hf-file {{.File}} -c 2048
` + "```" + `
`))

type cardData struct {
	Metadata      string
	Title         string
	Source        string
	SourceURL     string
	ToolName      string
	ToolURL       string
	Scheme        string
	File          string
	DestinationID string
}

// Build renders the card for id from the given upstream metadata block. The
// output depends only on its inputs.
func (b *Builder) Build(id model.ID, upstream string) Document {
	if upstream == "" {
		upstream = Placeholder
	}
	toolName := b.ToolName
	if toolName == "" {
		toolName = DefaultToolName
	}
	toolURL := b.ToolURL
	if toolURL == "" {
		toolURL = DefaultToolURL
	}
	data := cardData{
		Metadata:      upstream,
		Title:         model.DestinationName(id, b.Scheme),
		Source:        id.String(),
		ToolName:      toolName,
		ToolURL:       toolURL,
		Scheme:        b.Scheme,
		File:          model.ArtifactFileName(id, b.Scheme),
		DestinationID: model.DestinationID(b.Namespace, id, b.Scheme),
	}
	if b.SourceURL != nil {
		data.SourceURL = b.SourceURL(id)
	}
	var buf bytes.Buffer
	// The template is fixed and the data is plain strings; Execute cannot
	// fail short of a bug.
	if err := cardTemplate.Execute(&buf, data); err != nil {
		panic(err)
	}
	return Document(buf.Bytes())
}
