package plan

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/artpar/drydock/internal/core/domain"
)

// =============================================================================
// Compose Descriptor Export
// =============================================================================

// networkName is the shared network every exported service joins.
const networkName = "drydock"

// Descriptor renders a resolution as a compose project so operators can
// inspect or run the planned composition with standard tooling. Values
// are substituted into service environments; dependency edges become
// depends_on with the service_healthy condition.
func Descriptor(res *domain.Resolution, values map[string]string) (*types.Project, error) {
	edges := Edges(res)

	services := types.Services{}
	for _, s := range res.Services {
		svc := types.ServiceConfig{
			Name:     s.Spec.Name,
			Image:    s.Spec.Image,
			Restart:  "unless-stopped",
			Networks: map[string]*types.ServiceNetworkConfig{networkName: nil},
			Labels: types.Labels{
				"drydock.profile": s.Profile,
				"drydock.tier":    strconv.Itoa(s.Spec.Tier),
			},
		}
		if len(s.SharedWith) > 0 {
			svc.Labels["drydock.shared_with"] = strings.Join(s.SharedWith, ",")
		}

		if len(s.Spec.Env) > 0 {
			env := types.MappingWithEquals{}
			for k, raw := range s.Spec.Env {
				v := SubstituteValues(raw, values)
				env[k] = &v
			}
			svc.Environment = env
		}

		for _, p := range s.Spec.Ports {
			port := types.ServicePortConfig{
				Target:   uint32(p.ContainerPort),
				Protocol: p.Protocol,
			}
			if p.HostPort != 0 {
				port.Published = strconv.Itoa(p.HostPort)
			}
			svc.Ports = append(svc.Ports, port)
		}

		if len(s.Spec.Health.Test) > 0 {
			hc := &types.HealthCheckConfig{Test: s.Spec.Health.Test}
			if s.Spec.Health.Interval > 0 {
				interval := types.Duration(s.Spec.Health.Interval)
				hc.Interval = &interval
			}
			if s.Spec.Health.Timeout > 0 {
				timeout := types.Duration(s.Spec.Health.Timeout)
				hc.Timeout = &timeout
			}
			if s.Spec.Health.Retries > 0 {
				retries := uint64(s.Spec.Health.Retries)
				hc.Retries = &retries
			}
			svc.HealthCheck = hc
		}

		if deps := edges[s.Spec.Name]; len(deps) > 0 {
			dependsOn := types.DependsOnConfig{}
			for _, dep := range deps {
				dependsOn[dep] = types.ServiceDependency{
					Condition: types.ServiceConditionHealthy,
					Required:  true,
				}
			}
			svc.DependsOn = dependsOn
		}

		services[s.Spec.Name] = svc
	}

	return &types.Project{
		Name:     "drydock",
		Services: services,
		Networks: types.Networks{
			networkName: types.NetworkConfig{Name: networkName},
		},
	}, nil
}

// MarshalDescriptor renders the project as compose YAML.
func MarshalDescriptor(project *types.Project) ([]byte, error) {
	out, err := project.MarshalYAML()
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor: %w", err)
	}
	return out, nil
}

// ValidateDescriptor round-trips the YAML through the compose loader so
// anything we export is guaranteed loadable by standard tooling.
func ValidateDescriptor(ctx context.Context, content []byte) error {
	var dict map[string]interface{}
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return fmt.Errorf("descriptor is not valid YAML: %w", err)
	}

	_, err := loader.LoadWithContext(ctx, types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{Content: content, Config: dict},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("drydock", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = true // values were substituted already
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return fmt.Errorf("descriptor failed compose validation: %w", err)
	}
	return nil
}

// =============================================================================
// Value Substitution
// =============================================================================

// SubstituteValues replaces ${key} placeholders with entries from the
// value map. Unknown placeholders are left intact so the gap is visible
// to the operator instead of silently collapsing to an empty string.
func SubstituteValues(raw string, values map[string]string) string {
	if !strings.Contains(raw, "${") {
		return raw
	}
	out := raw
	for k, v := range values {
		out = strings.ReplaceAll(out, "${"+k+"}", v)
	}
	return out
}
