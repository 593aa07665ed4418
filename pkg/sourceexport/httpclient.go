package sourceexport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/archive"
)

// httpSourceService talks to the source repository service. Both the
// VCS archive export and the package fetch hand back a gzipped tar
// stream which gets extracted into the destination dir.
type httpSourceService struct {
	base string
	http *http.Client
}

// NewVCSClient returns a VCSClient backed by the source repository
// service at baseURL.
func NewVCSClient(baseURL string, httpClient *http.Client) VCSClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &httpSourceService{base: baseURL, http: httpClient}
}

// NewPackageStore returns a PackageStore backed by the same service.
func NewPackageStore(baseURL string, httpClient *http.Client) PackageStore {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &httpSourceService{base: baseURL, http: httpClient}
}

func (s *httpSourceService) ExportArchive(
	ctx context.Context, appCode string, moduleName string, version domain.VersionInfo, destDir string,
) error {
	return s.fetch(ctx, "/repositories/export", map[string]any{
		"app_code":     appCode,
		"module_name":  moduleName,
		"version_info": version,
	}, destDir)
}

func (s *httpSourceService) FetchPackage(
	ctx context.Context, applicationCode string, version domain.VersionInfo, destDir string,
) error {
	return s.fetch(ctx, "/packages/export", map[string]any{
		"app_code":     applicationCode,
		"version_info": version,
	}, destDir)
}

func (s *httpSourceService) fetch(ctx context.Context, path string, payload map[string]any, destDir string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return xe.Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, bytes.NewReader(body))
	if err != nil {
		return xe.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return xe.Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return xe.Wrap(fmt.Errorf(
			"source service returned %d: %s", resp.StatusCode, string(raw),
		))
	}
	return archive.Untar(destDir, resp.Body)
}
