package oci

import (
	"io"
	"os"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	ggcrtypes "github.com/google/go-containerregistry/pkg/v1/types"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

var _ v1.Layer = &fileLayer{}

// fileLayer is an uncompressed layer backed by a local file.
type fileLayer struct {
	path string
	desc v1.Descriptor
}

func newFileLayer(path string, mt ggcrtypes.MediaType, title string) (*fileLayer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	hash, size, err := v1.SHA256(f)
	if err != nil {
		return nil, err
	}
	return &fileLayer{
		path: path,
		desc: v1.Descriptor{
			Size:        size,
			Digest:      hash,
			MediaType:   mt,
			Annotations: map[string]string{ocispec.AnnotationTitle: title},
		},
	}, nil
}

// Descriptor lets partial.Descriptor pick up the layer annotations.
func (l *fileLayer) Descriptor() (*v1.Descriptor, error) {
	desc := l.desc
	return &desc, nil
}

func (l *fileLayer) Digest() (v1.Hash, error) {
	return l.DiffID()
}

func (l *fileLayer) DiffID() (v1.Hash, error) {
	return l.desc.Digest, nil
}

func (l *fileLayer) Compressed() (io.ReadCloser, error) {
	return l.Uncompressed()
}

func (l *fileLayer) Uncompressed() (io.ReadCloser, error) {
	return os.Open(l.path)
}

func (l *fileLayer) Size() (int64, error) {
	return l.desc.Size, nil
}

func (l *fileLayer) MediaType() (ggcrtypes.MediaType, error) {
	return l.desc.MediaType, nil
}
