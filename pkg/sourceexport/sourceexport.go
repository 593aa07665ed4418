// Package sourceexport materializes an application's source tree on
// disk ahead of a build.
//
// Each source origin exports differently: checked-out VCS revisions,
// uploaded source packages, and pre-built images which need no source
// at all. All of them satisfy Exporter.
package sourceexport

import (
	"context"
	"fmt"
	"os"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

// Exporter writes a working tree for a version into destDir.
type Exporter interface {
	Export(ctx context.Context, destDir string, version domain.VersionInfo) error
}

// VCSClient is the narrow archive-export surface of the source
// repository service. Repository bindings are resolved service-side
// from the module identity.
type VCSClient interface {
	// ExportArchive extracts the tree at the given revision into destDir.
	ExportArchive(ctx context.Context, appCode string, moduleName string, version domain.VersionInfo, destDir string) error
}

// PackageStore fetches uploaded source packages (s-mart applications).
type PackageStore interface {
	// FetchPackage downloads and unpacks the package version into destDir.
	FetchPackage(ctx context.Context, applicationCode string, version domain.VersionInfo, destDir string) error
}

// ForOrigin returns the exporter handling the module's source origin.
func ForOrigin(
	origin domain.SourceOrigin,
	appCode string,
	moduleName string,
	vcs VCSClient,
	packages PackageStore,
) (Exporter, error) {
	switch origin {
	case domain.OriginAuthorizedVCS:
		return &vcsExporter{appCode: appCode, moduleName: moduleName, client: vcs}, nil
	case domain.OriginSMart:
		return &packageExporter{appCode: appCode, store: packages}, nil
	case domain.OriginImageRegistry:
		return &imageExporter{}, nil
	default:
		return nil, xe.Wrap(fmt.Errorf("unknown source origin: %s", origin))
	}
}

type vcsExporter struct {
	appCode    string
	moduleName string
	client     VCSClient
}

func (e *vcsExporter) Export(ctx context.Context, destDir string, version domain.VersionInfo) error {
	switch version.Type {
	case domain.VersionBranch, domain.VersionTag:
	default:
		return domain.NewValidation(
			"version_info.version_type",
			fmt.Sprintf("source origin authorized_vcs cannot deploy version type '%s'", version.Type),
		)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return xe.Wrap(err)
	}
	if err := e.client.ExportArchive(ctx, e.appCode, e.moduleName, version, destDir); err != nil {
		return domain.NewExternal(
			"SOURCE_EXPORT_FAILED",
			fmt.Sprintf("export %s '%s' from repository: %s", version.Type, version.Name, err),
			err,
		)
	}
	return nil
}

type packageExporter struct {
	appCode string
	store   PackageStore
}

func (e *packageExporter) Export(ctx context.Context, destDir string, version domain.VersionInfo) error {
	if version.Type != domain.VersionPackage {
		return domain.NewValidation(
			"version_info.version_type",
			fmt.Sprintf("source origin s_mart cannot deploy version type '%s'", version.Type),
		)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return xe.Wrap(err)
	}
	if err := e.store.FetchPackage(ctx, e.appCode, version, destDir); err != nil {
		return domain.NewExternal(
			"SOURCE_EXPORT_FAILED",
			fmt.Sprintf("fetch source package '%s': %s", version.Name, err),
			err,
		)
	}
	return nil
}

// imageExporter is the no-op export of image-based modules. The image
// reference itself still gets validated so a bad tag fails in
// preparation rather than at release.
type imageExporter struct{}

func (e *imageExporter) Export(ctx context.Context, destDir string, version domain.VersionInfo) error {
	if version.Type != domain.VersionImage {
		return domain.NewValidation(
			"version_info.version_type",
			fmt.Sprintf("source origin image_registry cannot deploy version type '%s'", version.Type),
		)
	}
	if _, err := name.ParseReference(version.Name); err != nil {
		return domain.NewValidation(
			"version_info.version_name",
			fmt.Sprintf("'%s' is not a valid image reference: %s", version.Name, err),
		)
	}
	return nil
}
