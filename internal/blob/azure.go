package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"presupuestos/internal/core"
)

const (
	// Well-known Azurite development account.
	azuriteAccountName = "devstoreaccount1"
	azuriteAccountKey  = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

// AzureStore keeps receipts in one Azure Blob Storage container.
type AzureStore struct {
	client    *azblob.Client
	container string
	now       func() time.Time
}

// isLocal reports whether serviceURL points at Azurite over plain http.
func isLocal(serviceURL string) bool {
	return strings.HasPrefix(serviceURL, "http://")
}

// NewAzureStore connects with the Azurite shared key for http endpoints and
// with DefaultAzureCredential otherwise, then ensures the container exists.
func NewAzureStore(ctx context.Context, serviceURL, container string) (*AzureStore, error) {
	if serviceURL == "" {
		return nil, errors.New("blob service URL is required")
	}
	if container == "" {
		container = DefaultContainer
	}

	var client *azblob.Client
	if isLocal(serviceURL) {
		slog.InfoContext(ctx, "Using Azurite shared key credentials", "blob_url", serviceURL)
		cred, err := azblob.NewSharedKeyCredential(azuriteAccountName, azuriteAccountKey)
		if err != nil {
			return nil, fmt.Errorf("create shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("create blob client with shared key: %w", err)
		}
	} else {
		var cred azcore.TokenCredential
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create default azure credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("create blob client: %w", err)
		}
	}

	if _, err := client.CreateContainer(ctx, container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("create container %s: %w", container, err)
	}

	slog.InfoContext(ctx, "Blob store initialized", "container", container)
	return &AzureStore{client: client, container: container, now: time.Now}, nil
}

func (s *AzureStore) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	name := NewName(filename, s.now())
	opts := &azblob.UploadStreamOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)}
	}
	if _, err := s.client.UploadStream(ctx, s.container, name, r, opts); err != nil {
		return "", fmt.Errorf("upload receipt %s: %w", name, err)
	}
	slog.InfoContext(ctx, "Receipt uploaded", "container", s.container, "blob_name", name)
	return name, nil
}

func (s *AzureStore) Resolve(_ context.Context, ref string) (string, error) {
	if err := validRef(ref); err != nil {
		return "", core.Invalid(err)
	}
	return s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(ref).URL(), nil
}

func (s *AzureStore) Delete(ctx context.Context, ref string) error {
	if err := validRef(ref); err != nil {
		return core.Invalid(err)
	}
	if _, err := s.client.DeleteBlob(ctx, s.container, ref, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return core.Failf(core.KindNotFound, "receipt %s", ref)
		}
		return fmt.Errorf("delete receipt %s: %w", ref, err)
	}
	slog.InfoContext(ctx, "Receipt deleted", "container", s.container, "blob_name", ref)
	return nil
}
