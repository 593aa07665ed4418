package descriptor

import (
	"fmt"
	"strings"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
)

// ParseProcfile reads the classic "name: command" process list.
// Names are lowercased before validation. Blank lines and #-comments
// are skipped.
func ParseProcfile(raw []byte) (map[string]string, error) {
	procs := map[string]string{}
	for i, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, command, found := strings.Cut(line, ":")
		if !found {
			return nil, domain.NewValidation(
				"Procfile", fmt.Sprintf("line %d: expected 'name: command'", i+1),
			)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		command = strings.TrimSpace(command)
		if err := domain.ValidateProcessName(name); err != nil {
			return nil, domain.NewValidation("Procfile", err.Error())
		}
		if command == "" {
			return nil, domain.NewValidation(
				"Procfile", fmt.Sprintf("process '%s': empty command", name),
			)
		}
		if _, dup := procs[name]; dup {
			return nil, domain.NewValidation(
				"Procfile", fmt.Sprintf("duplicate process '%s'", name),
			)
		}
		procs[name] = command
	}
	return procs, nil
}
