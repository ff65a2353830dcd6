package publicip

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/zinrai/wan-ip-provider/internal/domain"
)

const DefaultTimeout = 10 * time.Second

//go:embed catalog.yaml
var builtinCatalog []byte

type catalogFile struct {
	Services []catalogEntry `yaml:"services"`
}

type catalogEntry struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Format    string `yaml:"format"`
	JSONField string `yaml:"json_field"`
	Timeout   string `yaml:"timeout"`
}

// DefaultCatalog returns the built-in service list.
func DefaultCatalog() []domain.LookupService {
	services, err := ParseCatalog(builtinCatalog)
	if err != nil {
		panic(fmt.Sprintf("publicip: invalid built-in catalog: %v", err))
	}
	return services
}

// LoadCatalog reads a catalog file, or returns the built-in catalog when path
// is empty.
func LoadCatalog(path string) ([]domain.LookupService, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service catalog: %w", err)
	}
	services, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return services, nil
}

func ParseCatalog(data []byte) ([]domain.LookupService, error) {
	var file catalogFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse service catalog: %w", err)
	}
	if len(file.Services) == 0 {
		return nil, fmt.Errorf("service catalog is empty")
	}

	seen := make(map[string]bool, len(file.Services))
	services := make([]domain.LookupService, 0, len(file.Services))
	for i, e := range file.Services {
		if e.Name == "" {
			return nil, fmt.Errorf("service %d: missing name", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("service %s: duplicate name", e.Name)
		}
		seen[e.Name] = true

		u, err := url.Parse(e.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("service %s: invalid url %q", e.Name, e.URL)
		}

		svc := domain.LookupService{
			Name:      e.Name,
			URL:       e.URL,
			Format:    domain.FormatText,
			JSONField: e.JSONField,
			Timeout:   DefaultTimeout,
		}
		switch e.Format {
		case "", string(domain.FormatText):
		case string(domain.FormatJSON):
			if e.JSONField == "" {
				return nil, fmt.Errorf("service %s: json format requires json_field", e.Name)
			}
			svc.Format = domain.FormatJSON
		default:
			return nil, fmt.Errorf("service %s: unknown format %q", e.Name, e.Format)
		}
		if e.Timeout != "" {
			d, err := time.ParseDuration(e.Timeout)
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("service %s: invalid timeout %q", e.Name, e.Timeout)
			}
			svc.Timeout = d
		}
		services = append(services, svc)
	}
	return services, nil
}
