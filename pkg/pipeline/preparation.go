package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tencentblueking/bkpaas-core/pkg/descriptor"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	"github.com/tencentblueking/bkpaas-core/pkg/objstore"
	"github.com/tencentblueking/bkpaas-core/pkg/utils/archive"
)

const (
	stepParseDescription  = "parse app description"
	stepUploadSource      = "upload source"
	stepProvisionServices = "provision services"

	descriptorFile = "app_desc.yaml"
	procfileFile   = "Procfile"
)

// preparation materializes the source tree, applies the descriptor,
// and uploads the build input archive.
//
// Image-based modules carry no source; their steps are skipped after
// the image reference is validated.
func (p *Pipeline) preparation(ctx context.Context, t *target) error {
	if t.module.SourceOrigin == domain.OriginImageRegistry {
		exporter, err := p.Exporters(t.app, t.module)
		if err != nil {
			return err
		}
		if err := exporter.Export(ctx, "", t.d.Version); err != nil {
			return err
		}
		p.skipStep(ctx, t.d.ID, domain.PhasePreparation, stepParseDescription)
		p.skipStep(ctx, t.d.ID, domain.PhasePreparation, stepUploadSource)
		p.skipStep(ctx, t.d.ID, domain.PhasePreparation, stepProvisionServices)
		return nil
	}

	scratch, err := os.MkdirTemp(p.Config.WorkDir, "deploy-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	var sourceRoot string
	err = p.runStep(ctx, t.d.ID, domain.PhasePreparation, stepParseDescription, func(ctx context.Context) error {
		exporter, err := p.Exporters(t.app, t.module)
		if err != nil {
			return err
		}
		treeRoot := filepath.Join(scratch, "source")
		if err := exporter.Export(ctx, treeRoot, t.d.Version); err != nil {
			return err
		}
		sourceRoot, err = archive.ResolveSourceDir(treeRoot, t.d.Advanced.SourceDir)
		if err != nil {
			return err
		}
		return p.applyDescription(ctx, t, sourceRoot)
	})
	if err != nil {
		return err
	}

	err = p.runStep(ctx, t.d.ID, domain.PhasePreparation, stepUploadSource, func(ctx context.Context) error {
		tarPath := filepath.Join(scratch, "source.tar.gz")
		size, err := archive.TarGz(sourceRoot, tarPath)
		if err != nil {
			return err
		}
		if p.Config.ArchiveSizeWarnBytes > 0 && size > p.Config.ArchiveSizeWarnBytes {
			p.Logger.Printf(
				"deployment %s: source archive is %d bytes, over the %d byte threshold",
				t.d.ID, size, p.Config.ArchiveSizeWarnBytes,
			)
		}
		key := objstore.SourceTarKey(
			t.app.Region, t.env.EngineApp.Name, t.d.Version.Name, t.d.Version.Revision,
		)
		if _, err := p.Store.Upload(ctx, key, tarPath); err != nil {
			return err
		}
		t.sourceTarKey = key
		return nil
	})
	if err != nil {
		return err
	}

	if p.Addons == nil || t.state == nil || len(t.state.Addons) == 0 {
		p.skipStep(ctx, t.d.ID, domain.PhasePreparation, stepProvisionServices)
		return nil
	}
	return p.runStep(ctx, t.d.ID, domain.PhasePreparation, stepProvisionServices, func(ctx context.Context) error {
		return p.Addons.Provision(ctx, t.app.Code, t.module.Name, t.env.Environment, t.state.Addons)
	})
}

// applyDescription parses app_desc.yaml and the Procfile out of the
// source root and syncs the descriptor into module rows. Both files
// are optional.
func (p *Pipeline) applyDescription(ctx context.Context, t *target, sourceRoot string) error {
	raw, err := os.ReadFile(filepath.Join(sourceRoot, descriptorFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err == nil {
		desc, err := descriptor.Parse(raw, p.Config.EnvVarCeiling)
		if err != nil {
			return err
		}
		state := desc.ModuleState()
		if err := p.Importer.Apply(
			ctx, t.app.ID, t.module.ID, state, domain.ManagerAppDescriptor,
		); err != nil {
			return err
		}
		t.state = state
	}

	rawProc, err := os.ReadFile(filepath.Join(sourceRoot, procfileFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err == nil {
		procfile, err := descriptor.ParseProcfile(rawProc)
		if err != nil {
			return err
		}
		t.procfile = procfile
	}

	if t.procfile == nil {
		t.procfile = procfileFromSpecs(ctx, p, t)
	}
	if len(t.procfile) == 0 {
		return domain.NewValidation(
			"processes",
			fmt.Sprintf("module '%s' declares no processes: add app_desc.yaml or a Procfile", t.module.Name),
		)
	}
	return nil
}

// procfileFromSpecs derives the build-facing procfile from persisted
// process specs when the tree ships no Procfile.
func procfileFromSpecs(ctx context.Context, p *Pipeline, t *target) map[string]string {
	specs, err := p.Apps.ListProcessSpecs(ctx, t.module.ID)
	if err != nil {
		p.Logger.Printf("list process specs of module %s: %v", t.module.ID, err)
		return nil
	}
	procfile := map[string]string{}
	for _, spec := range specs {
		switch {
		case spec.ProcCommand != "":
			procfile[spec.Name] = spec.ProcCommand
		case len(spec.Command) != 0 || len(spec.Args) != 0:
			procfile[spec.Name] = strings.Join(append(append([]string{}, spec.Command...), spec.Args...), " ")
		}
	}
	return procfile
}
