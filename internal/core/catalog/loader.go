package catalog

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artpar/drydock/internal/core/domain"
)

// =============================================================================
// Catalog File Loading
// =============================================================================

// LoadError describes a failure while reading or decoding a catalog file.
type LoadError struct {
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog %s: %s", e.Path, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// catalogFile is the YAML document schema. Durations are strings
// ("5s", "1m") so operators can write them naturally.
type catalogFile struct {
	Profiles []fileProfile `yaml:"profiles"`
}

type fileProfile struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Category    string           `yaml:"category"`
	Description string           `yaml:"description"`
	Services    []fileService    `yaml:"services"`
	Requires    []string         `yaml:"requires"`
	RequiresAny []string         `yaml:"requires_any"`
	Conflicts   []string         `yaml:"conflicts"`
	Fallback    *domain.Fallback `yaml:"fallback"`
}

type fileService struct {
	Name      string            `yaml:"name"`
	Image     string            `yaml:"image"`
	Tier      int               `yaml:"tier"`
	Required  bool              `yaml:"required"`
	Ports     []domain.PortSpec `yaml:"ports"`
	Env       map[string]string `yaml:"env"`
	Resources domain.Resources  `yaml:"resources"`
	Health    fileHealth        `yaml:"health"`
}

type fileHealth struct {
	Test     []string `yaml:"test"`
	Interval string   `yaml:"interval"`
	Timeout  string   `yaml:"timeout"`
	Retries  int      `yaml:"retries"`
}

// Load builds a registry from the built-in profiles merged with an
// optional catalog file. File entries replace built-ins with the same ID.
// An empty path loads the built-ins alone.
func Load(path string) (*Registry, error) {
	profiles := BuiltinProfiles()
	if path == "" {
		return NewRegistry(profiles)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "read failed", Err: err}
	}
	extra, err := parseCatalog(path, raw)
	if err != nil {
		return nil, err
	}

	merged := make([]domain.Profile, 0, len(profiles)+len(extra))
	replaced := make(map[string]bool, len(extra))
	for _, p := range extra {
		replaced[p.ID] = true
	}
	for _, p := range profiles {
		if !replaced[p.ID] {
			merged = append(merged, p)
		}
	}
	merged = append(merged, extra...)

	return NewRegistry(merged)
}

func parseCatalog(path string, raw []byte) ([]domain.Profile, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, &LoadError{Path: path, Message: "invalid yaml", Err: err}
	}

	out := make([]domain.Profile, 0, len(file.Profiles))
	for _, fp := range file.Profiles {
		p := domain.Profile{
			ID:          fp.ID,
			Name:        fp.Name,
			Category:    fp.Category,
			Description: fp.Description,
			Requires:    fp.Requires,
			RequiresAny: fp.RequiresAny,
			Conflicts:   fp.Conflicts,
			Fallback:    fp.Fallback,
		}
		for _, fs := range fp.Services {
			health, err := fs.Health.toDomain()
			if err != nil {
				return nil, &LoadError{Path: path,
					Message: fmt.Sprintf("profile %s service %s", fp.ID, fs.Name), Err: err}
			}
			p.Services = append(p.Services, domain.ServiceSpec{
				Name:      fs.Name,
				Image:     fs.Image,
				Tier:      fs.Tier,
				Required:  fs.Required,
				Ports:     fs.Ports,
				Env:       fs.Env,
				Resources: fs.Resources,
				Health:    health,
			})
		}
		out = append(out, p)
	}
	return out, nil
}

func (h fileHealth) toDomain() (domain.HealthSpec, error) {
	out := domain.HealthSpec{Test: h.Test, Retries: h.Retries}
	var err error
	if h.Interval != "" {
		if out.Interval, err = time.ParseDuration(h.Interval); err != nil {
			return out, fmt.Errorf("bad interval %q: %w", h.Interval, err)
		}
	}
	if h.Timeout != "" {
		if out.Timeout, err = time.ParseDuration(h.Timeout); err != nil {
			return out, fmt.Errorf("bad timeout %q: %w", h.Timeout, err)
		}
	}
	return out, nil
}
