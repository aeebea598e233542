// Package oci publishes converted models to an OCI registry as model
// artifacts.
package oci

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sirupsen/logrus"

	"github.com/docker/model-converter/pkg/llamacpp"
	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/publish"
)

const (
	// DefaultTag is the tag every upload is pushed to.
	DefaultTag = "latest"

	// AnnotationCommitMessage records the message of the last upload.
	AnnotationCommitMessage = "com.docker.model.commit-message"
	// AnnotationVisibility records the requested visibility. Registries
	// enforce their own access control.
	AnnotationVisibility = "com.docker.model.visibility"
)

var ErrNoArtifact = errors.New("no model artifact to attach file to")

// Config configures the OCI destination.
type Config struct {
	// Registry is the registry host, e.g. "registry-1.docker.io".
	Registry string
	Username string
	Password string
	// Insecure allows plain HTTP.
	Insecure bool
	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
}

// Destination pushes model artifacts to repositories named
// <registry>/<lower-case destination id>.
type Destination struct {
	registry  string
	insecure  bool
	keychain  authn.Keychain
	transport http.RoundTripper
	log       logging.Logger

	mu      sync.Mutex
	entries map[string]publish.Options
	pushed  map[string]*artifact
}

// New creates a Destination. Without credentials the default docker
// keychain is used.
func New(cfg Config, log logging.Logger) (*Destination, error) {
	if cfg.Registry == "" {
		return nil, errors.New("OCI registry is required")
	}
	var kc authn.Keychain = authn.DefaultKeychain
	if cfg.Username != "" || cfg.Password != "" {
		kc = staticKeychain{auth: authn.FromConfig(authn.AuthConfig{
			Username: cfg.Username,
			Password: cfg.Password,
		})}
	}
	t := cfg.Transport
	if t == nil {
		t = remote.DefaultTransport
	}
	return &Destination{
		registry:  strings.TrimSuffix(cfg.Registry, "/"),
		insecure:  cfg.Insecure,
		keychain:  kc,
		transport: t,
		log:       log,
		entries:   make(map[string]publish.Options),
		pushed:    make(map[string]*artifact),
	}, nil
}

type staticKeychain struct {
	auth authn.Authenticator
}

func (k staticKeychain) Resolve(authn.Resource) (authn.Authenticator, error) {
	return k.auth, nil
}

// Reference returns the tag reference destID is pushed to.
func (d *Destination) Reference(destID string) (name.Tag, error) {
	if _, _, err := publish.SplitDestID(destID); err != nil {
		return name.Tag{}, err
	}
	var opts []name.Option
	if d.insecure {
		opts = append(opts, name.Insecure)
	}
	return name.NewTag(d.registry+"/"+strings.ToLower(destID)+":"+DefaultTag, opts...)
}

func (d *Destination) remoteOptions(ctx context.Context) []remote.Option {
	return []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(d.keychain),
		remote.WithTransport(d.transport),
	}
}

// EnsureEntry implements publish.Destination. Repositories are created on
// first push, so this verifies push access and remembers opts for the
// artifact annotations.
func (d *Destination) EnsureEntry(ctx context.Context, destID string, opts publish.Options) error {
	ref, err := d.Reference(destID)
	if err != nil {
		return publish.NewError(destID, "ensure entry", err)
	}
	if err := remote.CheckPushPermission(ref, d.keychain, d.transport); err != nil {
		return publish.NewError(destID, "ensure entry", wrapTransportError(err))
	}
	d.mu.Lock()
	d.entries[destID] = opts
	d.mu.Unlock()
	d.log.WithFields(logrus.Fields{"destination": destID, "reference": ref.String()}).Info("Push access confirmed")
	return nil
}

// UploadFile implements publish.Destination. A .gguf file becomes a new
// model artifact pushed to DefaultTag. Any other file is appended as a layer
// to the current artifact and pushed again as a separate write.
func (d *Destination) UploadFile(ctx context.Context, destID, localPath, remotePath, commitMessage string) error {
	op := "upload " + remotePath
	ref, err := d.Reference(destID)
	if err != nil {
		return publish.NewError(destID, op, err)
	}

	var art *artifact
	if strings.EqualFold(path.Ext(remotePath), ".gguf") {
		art, err = d.newModelArtifact(destID, localPath, remotePath)
	} else {
		art, err = d.appendFile(ctx, destID, ref, localPath, remotePath)
	}
	if err != nil {
		return publish.NewError(destID, op, err)
	}
	if art.annotations == nil {
		art.annotations = make(map[string]string)
	}
	if commitMessage != "" {
		art.annotations[AnnotationCommitMessage] = commitMessage
	}

	if err := remote.Write(ref, art, d.remoteOptions(ctx)...); err != nil {
		return publish.NewError(destID, op, wrapTransportError(err))
	}
	digest, err := art.Digest()
	if err != nil {
		return publish.NewError(destID, op, err)
	}

	d.mu.Lock()
	d.pushed[destID] = art
	d.mu.Unlock()
	d.log.WithFields(logrus.Fields{
		"destination": destID,
		"reference":   ref.String(),
		"digest":      digest.String(),
		"file":        remotePath,
	}).Info("Pushed model artifact")
	return nil
}

func (d *Destination) newModelArtifact(destID, localPath, remotePath string) (*artifact, error) {
	layer, err := newFileLayer(localPath, MediaTypeGGUF, remotePath)
	if err != nil {
		return nil, fmt.Errorf("create gguf layer: %w", err)
	}
	cfg := ModelConfig{Format: FormatGGUF}
	if md, err := llamacpp.Inspect(localPath); err != nil {
		d.log.WithError(err).Debug("Continuing without GGUF metadata")
	} else {
		cfg = ModelConfig{
			Format:       FormatGGUF,
			Quantization: md.FileType,
			Parameters:   md.Parameters,
			Architecture: md.Architecture,
			Size:         md.Size,
			GGUF:         md.KV,
		}
	}

	base := &artifact{
		configFile:  ConfigFile{Config: cfg, RootFS: v1.RootFS{Type: "rootfs"}},
		annotations: d.annotations(destID),
	}
	return base.withLayer(layer)
}

func (d *Destination) appendFile(ctx context.Context, destID string, ref name.Tag, localPath, remotePath string) (*artifact, error) {
	d.mu.Lock()
	base := d.pushed[destID]
	d.mu.Unlock()
	if base == nil {
		img, err := remote.Image(ref, d.remoteOptions(ctx)...)
		if err != nil {
			var terr *transport.Error
			if errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound {
				return nil, ErrNoArtifact
			}
			return nil, fmt.Errorf("fetch %s: %w", ref, wrapTransportError(err))
		}
		if base, err = fromImage(img); err != nil {
			return nil, err
		}
	}

	mt := MediaTypeFile
	if strings.EqualFold(path.Ext(remotePath), ".md") {
		mt = MediaTypeModelCard
	}
	layer, err := newFileLayer(localPath, mt, remotePath)
	if err != nil {
		return nil, fmt.Errorf("create layer: %w", err)
	}
	return base.withLayer(layer)
}

func (d *Destination) annotations(destID string) map[string]string {
	d.mu.Lock()
	opts := d.entries[destID]
	d.mu.Unlock()

	_, entryName, _ := publish.SplitDestID(destID)
	title := opts.DisplayName
	if title == "" {
		title = entryName
	}
	a := map[string]string{ocispec.AnnotationTitle: title}
	if opts.License != "" {
		a[ocispec.AnnotationLicenses] = opts.License
	}
	if opts.SourceURL != "" {
		a[ocispec.AnnotationSource] = opts.SourceURL
	}
	if opts.Description != "" {
		a[ocispec.AnnotationDescription] = opts.Description
	}
	if opts.Visibility != "" {
		a[AnnotationVisibility] = string(opts.Visibility)
	}
	return a
}

// wrapTransportError adds the registry error codes to err's message.
func wrapTransportError(err error) error {
	var terr *transport.Error
	if errors.As(err, &terr) && len(terr.Errors) > 0 {
		codes := make([]string, 0, len(terr.Errors))
		for _, e := range terr.Errors {
			codes = append(codes, string(e.Code))
		}
		return fmt.Errorf("%w (registry codes: %s)", err, strings.Join(codes, ", "))
	}
	return err
}
