package oci

import (
	"encoding/json"
	"fmt"
	"maps"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/partial"
	ggcrtypes "github.com/google/go-containerregistry/pkg/v1/types"
)

const (
	// MediaTypeModelConfigV01 is the media type for the model config json.
	MediaTypeModelConfigV01 = ggcrtypes.MediaType("application/vnd.docker.ai.model.config.v0.1+json")
	// MediaTypeGGUF indicates a file in GGUF version 3 format.
	MediaTypeGGUF = ggcrtypes.MediaType("application/vnd.docker.ai.gguf.v3")
	// MediaTypeModelCard indicates the markdown description of the model.
	MediaTypeModelCard = ggcrtypes.MediaType("text/markdown")
	// MediaTypeFile is used for any other file.
	MediaTypeFile = ggcrtypes.MediaType("application/octet-stream")

	FormatGGUF = "gguf"
)

// ConfigFile is the model config blob.
type ConfigFile struct {
	Config ModelConfig `json:"config"`
	RootFS v1.RootFS   `json:"rootfs"`
}

// ModelConfig describes the model.
type ModelConfig struct {
	Format       string            `json:"format,omitempty"`
	Quantization string            `json:"quantization,omitempty"`
	Parameters   string            `json:"parameters,omitempty"`
	Architecture string            `json:"architecture,omitempty"`
	Size         string            `json:"size,omitempty"`
	GGUF         map[string]string `json:"gguf,omitempty"`
}

var _ v1.Image = &artifact{}

// artifact is a model packaged as an OCI image manifest with a model config.
type artifact struct {
	configFile  ConfigFile
	layers      []v1.Layer
	annotations map[string]string
}

// withLayer returns a copy of a with l appended.
func (a *artifact) withLayer(l v1.Layer) (*artifact, error) {
	diffID, err := l.DiffID()
	if err != nil {
		return nil, fmt.Errorf("get layer diffID: %w", err)
	}
	cf := a.configFile
	cf.RootFS.DiffIDs = append(append([]v1.Hash(nil), a.configFile.RootFS.DiffIDs...), diffID)
	layers := append(append([]v1.Layer(nil), a.layers...), l)
	return &artifact{configFile: cf, layers: layers, annotations: maps.Clone(a.annotations)}, nil
}

func (a *artifact) Layers() ([]v1.Layer, error) {
	return a.layers, nil
}

func (a *artifact) MediaType() (ggcrtypes.MediaType, error) {
	return ggcrtypes.OCIManifestSchema1, nil
}

func (a *artifact) Size() (int64, error) {
	return partial.Size(a)
}

func (a *artifact) ConfigName() (v1.Hash, error) {
	return partial.ConfigName(a)
}

func (a *artifact) ConfigFile() (*v1.ConfigFile, error) {
	return nil, fmt.Errorf("invalid for model")
}

func (a *artifact) RawConfigFile() ([]byte, error) {
	return json.Marshal(a.configFile)
}

func (a *artifact) Digest() (v1.Hash, error) {
	return partial.Digest(a)
}

func (a *artifact) RawManifest() ([]byte, error) {
	return partial.RawManifest(a)
}

func (a *artifact) Manifest() (*v1.Manifest, error) {
	cfgLayer, err := partial.ConfigLayer(a)
	if err != nil {
		return nil, fmt.Errorf("get raw config file: %w", err)
	}
	cfgDsc, err := partial.Descriptor(cfgLayer)
	if err != nil {
		return nil, fmt.Errorf("get config descriptor: %w", err)
	}
	cfgDsc.MediaType = MediaTypeModelConfigV01

	layers := make([]v1.Descriptor, 0, len(a.layers))
	for _, l := range a.layers {
		desc, err := partial.Descriptor(l)
		if err != nil {
			return nil, fmt.Errorf("get layer descriptor: %w", err)
		}
		layers = append(layers, *desc)
	}

	var annotations map[string]string
	if len(a.annotations) > 0 {
		annotations = maps.Clone(a.annotations)
	}
	return &v1.Manifest{
		SchemaVersion: 2,
		MediaType:     ggcrtypes.OCIManifestSchema1,
		Config:        *cfgDsc,
		Layers:        layers,
		Annotations:   annotations,
	}, nil
}

func (a *artifact) LayerByDigest(hash v1.Hash) (v1.Layer, error) {
	for _, l := range a.layers {
		d, err := l.Digest()
		if err != nil {
			return nil, fmt.Errorf("get layer digest: %w", err)
		}
		if d == hash {
			return l, nil
		}
	}
	return nil, fmt.Errorf("layer not found")
}

func (a *artifact) LayerByDiffID(hash v1.Hash) (v1.Layer, error) {
	for _, l := range a.layers {
		d, err := l.DiffID()
		if err != nil {
			return nil, fmt.Errorf("get layer diffID: %w", err)
		}
		if d == hash {
			return l, nil
		}
	}
	return nil, fmt.Errorf("layer not found")
}

// fromImage wraps a pulled model artifact so layers can be appended
// without losing the model config.
func fromImage(img v1.Image) (*artifact, error) {
	raw, err := img.RawConfigFile()
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	var cf ConfigFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("decode model config: %w", err)
	}
	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("get layers: %w", err)
	}
	manifest, err := img.Manifest()
	if err != nil {
		return nil, fmt.Errorf("get manifest: %w", err)
	}
	return &artifact{configFile: cf, layers: layers, annotations: maps.Clone(manifest.Annotations)}, nil
}
